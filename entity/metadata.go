// Package entity implements spec.md §4.3: Markdown-with-YAML-frontmatter
// persistence for Task and QA Record (Session's JSON persistence lives in
// the session package), the canonical relationship-edge graph, and the qmuntal/stateless-backed state
// machine every entity kind transitions through. State is derived solely
// from the directory an entity's file lives in — never from frontmatter.
package entity

import "time"

// Metadata carries the timestamps and ownership fields every entity kind
// shares, grounded on `original_source/src/edison/core/task/models.py`'s
// `EntityMetadata` (imported there from the `entity` package, not itself in
// the retrieval pack, so its shape is reconstructed from every call site:
// `EntityMetadata.create(created_by=..., session_id=...)` and `.touch()`).
type Metadata struct {
	CreatedAt time.Time `yaml:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `yaml:"updatedAt" json:"updatedAt"`
	CreatedBy string    `yaml:"createdBy,omitempty" json:"createdBy,omitempty"`
	SessionID string    `yaml:"sessionId,omitempty" json:"sessionId,omitempty"`
}

// NewMetadata stamps CreatedAt/UpdatedAt to now, matching
// EntityMetadata.create()'s default factory behavior.
func NewMetadata(createdBy, sessionID string) Metadata {
	now := time.Now().UTC()
	return Metadata{CreatedAt: now, UpdatedAt: now, CreatedBy: createdBy, SessionID: sessionID}
}

// Touch bumps UpdatedAt, matching EntityMetadata.touch().
func (m *Metadata) Touch() { m.UpdatedAt = time.Now().UTC() }

// StateHistoryEntry records one guarded transition, appended on every
// successful state change (spec.md §4.3 step 5).
type StateHistoryEntry struct {
	From       string    `yaml:"from" json:"from"`
	To         string    `yaml:"to" json:"to"`
	Timestamp  time.Time `yaml:"timestamp" json:"timestamp"`
	Reason     string    `yaml:"reason,omitempty" json:"reason,omitempty"`
	Violations []string  `yaml:"violations,omitempty" json:"violations,omitempty"`
}

func NewStateHistoryEntry(from, to, reason string, violations []string) StateHistoryEntry {
	return StateHistoryEntry{
		From:       from,
		To:         to,
		Timestamp:  time.Now().UTC(),
		Reason:     reason,
		Violations: violations,
	}
}
