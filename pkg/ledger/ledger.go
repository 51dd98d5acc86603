// Package ledger defines the Ledger Store's data model and the Store
// interface it implements durably (see pkg/ledger/sqlite): per-session,
// append-only records of every applied plugin mutation, plus the
// aggregated Ledger Document view external callers consume.
package ledger

import "time"

// PluginSnapshot freezes the identifying fields of the plugin that
// produced an entry, so the ledger stays readable even if the plugin is
// later renamed or removed from the registry.
type PluginSnapshot struct {
	ID       string
	Name     string
	Severity string
}

// SpecSnapshot freezes the specification reference a plugin declared.
type SpecSnapshot struct {
	RFC         string
	OIDC        string
	CWE         string
	Requirement string
	Violation   string
}

// Entry is a single plugin application, per spec.md §3's Ledger Entry.
type Entry struct {
	ID        string
	SessionID string
	RequestID string
	Timestamp time.Time
	Plugin    PluginSnapshot
	Spec      SpecSnapshot
	Evidence  map[string]any
}

// SessionRecord is the persisted shape of a session, per spec.md §3's
// Session entity and §7's "Persisted state layout".
type SessionRecord struct {
	ID             string
	Name           string
	Mode           string
	Mischief       []string
	Probability    float64
	MischiefConfig map[string]map[string]any
	StartedAt      time.Time
	EndedAt        *time.Time
}

// Store is the Ledger Store's operation set: spec.md §4.G.
type Store interface {
	// SaveSession upserts a session record.
	SaveSession(rec SessionRecord) error
	// LoadSession returns a single session record by id.
	LoadSession(id string) (SessionRecord, error)
	// LoadAllSessions returns every session, ordered by descending
	// StartedAt.
	LoadAllSessions() ([]SessionRecord, error)
	// DeleteSession removes a session and cascades to its entries.
	DeleteSession(id string) error
	// PurgeAll removes every session and entry.
	PurgeAll() error
	// SaveEntry appends an entry. Entries for the same session must be
	// retrievable later in insertion order.
	SaveEntry(e Entry) error
	// LoadEntries returns a session's entries in ascending timestamp order.
	LoadEntries(sessionID string) ([]Entry, error)
}

// DocumentMeta is the Ledger Document's metadata block.
type DocumentMeta struct {
	Version       string
	SessionID     string
	SessionName   string
	Mode          string
	StartedAt     time.Time
	EndedAt       *time.Time
	EngineVersion string
}

// DocumentSummary is the Ledger Document's summary block.
type DocumentSummary struct {
	DistinctRequestCount int
	TotalAppliedCount    int
	AppliedByPluginID    map[string]int
	AppliedBySeverity    map[string]int
}

// Document is the derived, external-facing view of a session's ledger,
// per spec.md §3's "Ledger Document".
type Document struct {
	Meta    DocumentMeta
	Summary DocumentSummary
	Entries []Entry
}

// DocumentVersion is the fixed Ledger Document schema version spec.md §3
// requires.
const DocumentVersion = "1.0.0"

// BuildDocument assembles a Document from a session record and its
// entries, computing the summary block. entries must already be in
// ascending timestamp order (as Store.LoadEntries guarantees).
func BuildDocument(rec SessionRecord, entries []Entry, engineVersion string) Document {
	requestIDs := make(map[string]struct{})
	byPlugin := make(map[string]int)
	bySeverity := map[string]int{
		"critical": 0,
		"high":     0,
		"medium":   0,
		"low":      0,
	}

	for _, e := range entries {
		requestIDs[e.RequestID] = struct{}{}
		byPlugin[e.Plugin.ID]++
		bySeverity[e.Plugin.Severity]++
	}

	return Document{
		Meta: DocumentMeta{
			Version:       DocumentVersion,
			SessionID:     rec.ID,
			SessionName:   rec.Name,
			Mode:          rec.Mode,
			StartedAt:     rec.StartedAt,
			EndedAt:       rec.EndedAt,
			EngineVersion: engineVersion,
		},
		Summary: DocumentSummary{
			DistinctRequestCount: len(requestIDs),
			TotalAppliedCount:    len(entries),
			AppliedByPluginID:    byPlugin,
			AppliedBySeverity:    bySeverity,
		},
		Entries: entries,
	}
}
