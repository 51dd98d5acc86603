package sqlite_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loki-oidc/loki-splice/pkg/ledger"
	ledgersqlite "github.com/loki-oidc/loki-splice/pkg/ledger/sqlite"
)

func openTestStore(t *testing.T) *ledgersqlite.Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledgersqlite.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndLoadSession_RoundTrips(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	rec := ledger.SessionRecord{
		ID:             "sess_1",
		Name:           "demo",
		Mode:           "shuffled",
		Mischief:       []string{"alg-none", "kid-manipulation"},
		Probability:    0.5,
		MischiefConfig: map[string]map[string]any{"kid-manipulation": {"mode": "sql"}},
		StartedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.SaveSession(rec))

	got, err := store.LoadSession("sess_1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.Mode, got.Mode)
	assert.Equal(t, rec.Mischief, got.Mischief)
	assert.Equal(t, rec.Probability, got.Probability)
	assert.Equal(t, rec.MischiefConfig, got.MischiefConfig)
	assert.Nil(t, got.EndedAt)
}

func TestSaveSession_UpsertUpdatesExisting(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	rec := ledger.SessionRecord{ID: "sess_2", Mode: "explicit", StartedAt: time.Now().UTC().Truncate(time.Millisecond)}
	require.NoError(t, store.SaveSession(rec))

	ended := time.Now().UTC().Truncate(time.Millisecond)
	rec.EndedAt = &ended
	require.NoError(t, store.SaveSession(rec))

	got, err := store.LoadSession("sess_2")
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.WithinDuration(t, ended, *got.EndedAt, time.Second)

	all, err := store.LoadAllSessions()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSaveEntry_LoadEntriesAscendingOrder(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	require.NoError(t, store.SaveSession(ledger.SessionRecord{
		ID: "sess_3", Mode: "explicit", StartedAt: time.Now().UTC(),
	}))

	base := time.Now().UTC().Truncate(time.Millisecond)
	e1 := ledger.Entry{
		ID: "e1", SessionID: "sess_3", RequestID: "req_a", Timestamp: base,
		Plugin:   ledger.PluginSnapshot{ID: "alg-none", Name: "Algorithm None", Severity: "critical"},
		Spec:     ledger.SpecSnapshot{RFC: "RFC 7519 §6", Violation: "alg=none accepted"},
		Evidence: map[string]any{"mutation": "set alg=none"},
	}
	e2 := e1
	e2.ID = "e2"
	e2.Timestamp = base.Add(time.Second)

	require.NoError(t, store.SaveEntry(e2))
	require.NoError(t, store.SaveEntry(e1))

	entries, err := store.LoadEntries("sess_3")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].ID)
	assert.Equal(t, "e2", entries[1].ID)
	assert.Equal(t, "set alg=none", entries[0].Evidence["mutation"])
}

func TestDeleteSession_CascadesToEntries(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	require.NoError(t, store.SaveSession(ledger.SessionRecord{ID: "sess_4", Mode: "explicit", StartedAt: time.Now().UTC()}))
	require.NoError(t, store.SaveEntry(ledger.Entry{
		ID: "e1", SessionID: "sess_4", RequestID: "req_a", Timestamp: time.Now().UTC(),
		Plugin: ledger.PluginSnapshot{ID: "alg-none", Severity: "critical"},
	}))

	require.NoError(t, store.DeleteSession("sess_4"))

	_, err := store.LoadSession("sess_4")
	assert.Error(t, err)

	entries, err := store.LoadEntries("sess_4")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPurgeAll_RemovesEverything(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	require.NoError(t, store.SaveSession(ledger.SessionRecord{ID: "sess_5", Mode: "explicit", StartedAt: time.Now().UTC()}))
	require.NoError(t, store.SaveEntry(ledger.Entry{
		ID: "e1", SessionID: "sess_5", RequestID: "req_a", Timestamp: time.Now().UTC(),
		Plugin: ledger.PluginSnapshot{ID: "alg-none", Severity: "critical"},
	}))

	require.NoError(t, store.PurgeAll())

	all, err := store.LoadAllSessions()
	require.NoError(t, err)
	assert.Empty(t, all)
}
