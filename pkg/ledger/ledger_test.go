package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/loki-oidc/loki-splice/pkg/ledger"
)

func TestBuildDocument_AggregatesSummary(t *testing.T) {
	t.Parallel()
	rec := ledger.SessionRecord{
		ID:        "sess_abc",
		Name:      "demo",
		Mode:      "explicit",
		StartedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	entries := []ledger.Entry{
		{
			ID: "e1", SessionID: "sess_abc", RequestID: "req_1",
			Timestamp: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
			Plugin:    ledger.PluginSnapshot{ID: "alg-none", Name: "Algorithm None", Severity: "critical"},
		},
		{
			ID: "e2", SessionID: "sess_abc", RequestID: "req_1",
			Timestamp: time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC),
			Plugin:    ledger.PluginSnapshot{ID: "kid-manipulation", Name: "Key ID Manipulation", Severity: "high"},
		},
		{
			ID: "e3", SessionID: "sess_abc", RequestID: "req_2",
			Timestamp: time.Date(2026, 1, 1, 0, 0, 3, 0, time.UTC),
			Plugin:    ledger.PluginSnapshot{ID: "alg-none", Name: "Algorithm None", Severity: "critical"},
		},
	}

	doc := ledger.BuildDocument(rec, entries, "1.2.3")

	assert.Equal(t, ledger.DocumentVersion, doc.Meta.Version)
	assert.Equal(t, "1.2.3", doc.Meta.EngineVersion)
	assert.Equal(t, 2, doc.Summary.DistinctRequestCount)
	assert.Equal(t, 3, doc.Summary.TotalAppliedCount)
	assert.Equal(t, 2, doc.Summary.AppliedByPluginID["alg-none"])
	assert.Equal(t, 1, doc.Summary.AppliedByPluginID["kid-manipulation"])
	assert.Equal(t, 2, doc.Summary.AppliedBySeverity["critical"])
	assert.Equal(t, 1, doc.Summary.AppliedBySeverity["high"])
	assert.Equal(t, 0, doc.Summary.AppliedBySeverity["medium"])
	assert.Equal(t, 0, doc.Summary.AppliedBySeverity["low"])
	assert.Len(t, doc.Entries, 3)
}

func TestBuildDocument_EmptyEntries(t *testing.T) {
	t.Parallel()
	rec := ledger.SessionRecord{ID: "sess_empty", Mode: "random"}

	doc := ledger.BuildDocument(rec, nil, "1.2.3")

	assert.Equal(t, 0, doc.Summary.DistinctRequestCount)
	assert.Equal(t, 0, doc.Summary.TotalAppliedCount)
	assert.Empty(t, doc.Entries)
	assert.Equal(t, map[string]int{"critical": 0, "high": 0, "medium": 0, "low": 0}, doc.Summary.AppliedBySeverity)
}
