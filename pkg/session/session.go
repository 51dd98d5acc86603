// Package session implements the Session Model: the policy each request
// consults to decide which plugin ids fire, and the session's lifecycle
// (creation, ending, deletion).
package session

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loki-oidc/loki-splice/pkg/logger"
	"github.com/loki-oidc/loki-splice/pkg/plugins"
)

// Mode is a session's mischief-selection policy.
type Mode string

// Recognised modes.
const (
	ModeExplicit Mode = "explicit"
	ModeRandom   Mode = "random"
	ModeShuffled Mode = "shuffled"
)

// ErrUnknownMode is returned by New for an unrecognised Mode.
var ErrUnknownMode = errors.New("session: unknown mode")

// ErrAlreadyEnded is returned by End on a session that has already ended.
var ErrAlreadyEnded = errors.New("session: already ended")

// ErrSessionEnded is returned by mutating operations on a session that has
// already ended: an ended session is read-only.
var ErrSessionEnded = errors.New("session: ended, read-only")

// ErrEnableRequiresExplicit is returned by Enable when the session's mode
// is not ModeExplicit.
var ErrEnableRequiresExplicit = errors.New("session: enable only valid in explicit mode")

// idPrefix matches the teacher's convention of prefixing generated
// identifiers with a short resource tag.
const idPrefix = "sess_"

// Session is a single fault-injection session: its mischief policy plus
// lifecycle timestamps. All mutating methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id             string
	name           string
	mode           Mode
	mischief       []string
	probability    float64
	mischiefConfig map[string]map[string]any
	shuffleLeft    []string

	startedAt time.Time
	endedAt   *time.Time

	rng *rand.Rand
}

// New creates a Session in the given mode. name is optional. mischief is
// the full candidate plugin-id list the session draws from; probability
// is only consulted in ModeRandom. config is the per-plugin configuration
// map spec.md §4.B requires every fault mode to be parameterised through,
// keyed by plugin id; a nil or absent entry means that plugin runs with
// its own default mode. An rng may be supplied for deterministic tests;
// nil uses a process-global time-seeded source.
func New(name string, mode Mode, mischief []string, probability float64, config map[string]map[string]any, rng *rand.Rand) (*Session, error) {
	switch mode {
	case ModeExplicit, ModeRandom, ModeShuffled:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Session{
		id:             idPrefix + uuid.NewString(),
		name:           name,
		mode:           mode,
		mischief:       append([]string(nil), mischief...),
		probability:    probability,
		mischiefConfig: copyConfig(config),
		startedAt:      time.Now().UTC(),
		rng:            rng,
	}
	if mode == ModeShuffled {
		s.shuffleLeft = fisherYatesShuffle(s.mischief, rng)
	}
	logger.Infow("session: created", "id", s.id, "mode", mode, "mischief_count", len(mischief))
	return s, nil
}

// ID returns the session's sess_-prefixed identifier.
func (s *Session) ID() string { return s.id }

// Name returns the session's optional display name.
func (s *Session) Name() string { return s.name }

// Mode returns the session's mischief-selection policy.
func (s *Session) Mode() Mode { return s.mode }

// ConfigFor returns the per-plugin configuration map for id, per spec.md
// §4.B's requirement that every fault mode be parameterised through a
// per-plugin configuration map drawn from the session. Always non-nil;
// plugins with no configured entry get an empty map, which reads back as
// their own default mode.
func (s *Session) ConfigFor(id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.mischiefConfig[id]; ok {
		return cfg
	}
	return map[string]any{}
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// EndedAt returns when the session was ended, or nil if still active.
func (s *Session) EndedAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// End marks the session as ended. Calling End twice returns ErrAlreadyEnded.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endedAt != nil {
		return ErrAlreadyEnded
	}
	now := time.Now().UTC()
	s.endedAt = &now
	logger.Infow("session: ended", "id", s.id)
	return nil
}

// Summary returns the minimal session view plugin contexts carry, per
// plugins.Session.
func (s *Session) Summary() plugins.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return plugins.Session{ID: s.id, Name: s.name, Mode: string(s.mode)}
}

// Enable appends id to the mischief list. It only succeeds in explicit
// mode, and only while the session has not ended.
func (s *Session) Enable(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endedAt != nil {
		return ErrSessionEnded
	}
	if s.mode != ModeExplicit {
		return ErrEnableRequiresExplicit
	}
	s.mischief = append(s.mischief, id)
	return nil
}

// NextMischief returns the plugin ids that should fire for the next
// request, per the session's mode:
//   - explicit: always the full mischief list.
//   - random: empty with probability (1-probability); otherwise a single
//     uniformly random pick from mischief.
//   - shuffled: the head of the stored Fisher-Yates queue, consumed; empty
//     once the queue is drained.
func (s *Session) NextMischief() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case ModeExplicit:
		return append([]string(nil), s.mischief...)

	case ModeRandom:
		if len(s.mischief) == 0 || s.rng.Float64() > s.probability {
			return nil
		}
		pick := s.mischief[s.rng.Intn(len(s.mischief))]
		return []string{pick}

	case ModeShuffled:
		if len(s.shuffleLeft) == 0 {
			return nil
		}
		head := s.shuffleLeft[0]
		s.shuffleLeft = s.shuffleLeft[1:]
		return []string{head}

	default:
		return nil
	}
}

// copyConfig returns a defensive copy of a per-plugin configuration map so a
// caller mutating their original after New doesn't affect the session.
func copyConfig(config map[string]map[string]any) map[string]map[string]any {
	if config == nil {
		return nil
	}
	out := make(map[string]map[string]any, len(config))
	for id, cfg := range config {
		c := make(map[string]any, len(cfg))
		for k, v := range cfg {
			c[k] = v
		}
		out[id] = c
	}
	return out
}

// fisherYatesShuffle returns a new slice holding a Fisher-Yates permutation
// of ids, leaving ids untouched.
func fisherYatesShuffle(ids []string, rng *rand.Rand) []string {
	out := append([]string(nil), ids...)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
