package session_test

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loki-oidc/loki-splice/pkg/session"
)

func TestNew_GeneratesPrefixedID(t *testing.T) {
	t.Parallel()
	s, err := session.New("", session.ModeExplicit, []string{"alg-none"}, 0, nil, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.ID(), "sess_"))
}

func TestNew_RejectsUnknownMode(t *testing.T) {
	t.Parallel()
	_, err := session.New("", session.Mode("bogus"), nil, 0, nil, nil)
	assert.ErrorIs(t, err, session.ErrUnknownMode)
}

func TestExplicitMode_AlwaysReturnsFullList(t *testing.T) {
	t.Parallel()
	s, err := session.New("", session.ModeExplicit, []string{"a", "b", "c"}, 0, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, s.NextMischief())
	assert.Equal(t, []string{"a", "b", "c"}, s.NextMischief())
}

func TestRandomMode_ZeroProbabilityAlwaysEmpty(t *testing.T) {
	t.Parallel()
	s, err := session.New("", session.ModeRandom, []string{"a", "b"}, 0, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		assert.Empty(t, s.NextMischief())
	}
}

func TestRandomMode_OneProbabilityAlwaysPicksOne(t *testing.T) {
	t.Parallel()
	s, err := session.New("", session.ModeRandom, []string{"a", "b"}, 1, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		got := s.NextMischief()
		require.Len(t, got, 1)
		assert.Contains(t, []string{"a", "b"}, got[0])
	}
}

func TestShuffledMode_DrainsQueueThenEmpty(t *testing.T) {
	t.Parallel()
	mischief := []string{"a", "b", "c"}
	s, err := session.New("", session.ModeShuffled, mischief, 0, nil, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < len(mischief); i++ {
		got := s.NextMischief()
		require.Len(t, got, 1)
		seen[got[0]] = true
	}
	assert.Len(t, seen, len(mischief))
	assert.Empty(t, s.NextMischief())
}

func TestEnd_SetsEndedAtOnce(t *testing.T) {
	t.Parallel()
	s, err := session.New("", session.ModeExplicit, nil, 0, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, s.EndedAt())

	require.NoError(t, s.End())
	assert.NotNil(t, s.EndedAt())

	assert.ErrorIs(t, s.End(), session.ErrAlreadyEnded)
}

func TestEnable_OnlyExplicitMode(t *testing.T) {
	t.Parallel()
	explicit, err := session.New("", session.ModeExplicit, []string{"a"}, 0, nil, nil)
	require.NoError(t, err)
	require.NoError(t, explicit.Enable("b"))
	assert.Equal(t, []string{"a", "b"}, explicit.NextMischief())

	random, err := session.New("", session.ModeRandom, []string{"a"}, 1, nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, random.Enable("b"), session.ErrEnableRequiresExplicit)
}

func TestEnable_RejectedAfterEnd(t *testing.T) {
	t.Parallel()
	s, err := session.New("", session.ModeExplicit, []string{"a"}, 0, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.End())

	assert.ErrorIs(t, s.Enable("b"), session.ErrSessionEnded)
}

func TestConfigFor_ReturnsConfiguredPluginMap(t *testing.T) {
	t.Parallel()
	config := map[string]map[string]any{
		"kid-manipulation": {"mode": "sql"},
	}
	s, err := session.New("", session.ModeExplicit, []string{"kid-manipulation"}, 0, config, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"mode": "sql"}, s.ConfigFor("kid-manipulation"))
	assert.Empty(t, s.ConfigFor("issuer-confusion"))
}

type fakeLedger struct {
	deleted []string
}

func (f *fakeLedger) DeleteSession(id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func TestManager_DeleteCascadesToLedger(t *testing.T) {
	t.Parallel()
	ledger := &fakeLedger{}
	mgr := session.NewManager(ledger)
	s, err := session.New("", session.ModeExplicit, nil, 0, nil, nil)
	require.NoError(t, err)
	mgr.Add(s)

	require.NoError(t, mgr.Delete(s.ID()))

	_, ok := mgr.Get(s.ID())
	assert.False(t, ok)
	assert.Equal(t, []string{s.ID()}, ledger.deleted)
}

func TestManager_List_DescendingStartTime(t *testing.T) {
	t.Parallel()
	mgr := session.NewManager(nil)
	s1, err := session.New("first", session.ModeExplicit, nil, 0, nil, nil)
	require.NoError(t, err)
	s2, err := session.New("second", session.ModeExplicit, nil, 0, nil, nil)
	require.NoError(t, err)
	mgr.Add(s1)
	mgr.Add(s2)

	list := mgr.List()
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Name())
	assert.Equal(t, "first", list[1].Name())
}
