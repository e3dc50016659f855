package entity

// RoundEntry is one entry in a QA record's round history, grounded on
// qa/workflow/repository.py's `append_round` (`{"round": n, "status": ...,
// "date": "YYYY-MM-DD", "notes": ...}`). `round_history` itself is not
// declared on the `QARecord` dataclass in qa/models.py, but every read/write
// path in qa/workflow/repository.py treats `qa.round_history` as a plain
// list attribute, so its shape is reconstructed from those call sites.
type RoundEntry struct {
	Round  int    `yaml:"round" json:"round"`
	Status string `yaml:"status" json:"status"`
	Date   string `yaml:"date" json:"date"`
	Notes  string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// QARecord is spec.md §3.1's validation brief for a task, conventionally
// identified as "<task_id>-qa". Grounded on
// original_source/src/edison/core/qa/models.py's `QARecord` dataclass.
type QARecord struct {
	ID             string              `yaml:"id" json:"id"`
	TaskID         string              `yaml:"taskId" json:"taskId"`
	Title          string              `yaml:"title" json:"title"`
	SessionID      string              `yaml:"sessionId,omitempty" json:"sessionId,omitempty"`
	ValidatorOwner string              `yaml:"validatorOwner,omitempty" json:"validatorOwner,omitempty"`
	Metadata       Metadata            `yaml:"metadata" json:"metadata"`
	StateHistory   []StateHistoryEntry `yaml:"stateHistory,omitempty" json:"stateHistory,omitempty"`
	Validators     []string            `yaml:"validators,omitempty" json:"validators,omitempty"`
	Evidence       []string            `yaml:"evidence,omitempty" json:"evidence,omitempty"`
	Round          int                 `yaml:"round" json:"round"`
	RoundHistory   []RoundEntry        `yaml:"roundHistory,omitempty" json:"roundHistory,omitempty"`
	Edges          []RelationshipEdge  `yaml:"relationships,omitempty" json:"relationships,omitempty"`

	state string
}

// NewQARecord matches QARecord.create()'s factory defaults: round 1,
// metadata stamped with session_id.
func NewQARecord(id, taskID, title, sessionID string) *QARecord {
	return &QARecord{
		ID:        id,
		TaskID:    taskID,
		Title:     title,
		SessionID: sessionID,
		Metadata:  NewMetadata("", sessionID),
		Round:     1,
	}
}

// GetID satisfies RelationshipHolder.
func (q *QARecord) GetID() string { return q.ID }

// State returns the directory-derived state last assigned by the
// repository.
func (q *QARecord) State() string { return q.state }

// SetState is called exclusively by the repository layer.
func (q *QARecord) SetState(state string) { q.state = state }

// Relationships satisfies RelationshipHolder.
func (q *QARecord) Relationships() []RelationshipEdge { return q.Edges }

// SetRelationships satisfies RelationshipHolder.
func (q *QARecord) SetRelationships(edges []RelationshipEdge) { q.Edges = edges }

// RecordTransition appends a state_history entry, matching
// QARecord.record_transition.
func (q *QARecord) RecordTransition(from, to, reason string, violations []string) {
	q.StateHistory = append(q.StateHistory, NewStateHistoryEntry(from, to, reason, violations))
	q.Metadata.Touch()
}

// AppendRound increments Round and appends a RoundEntry, matching
// qa/workflow/repository.py's `QAWorkflowRepository.append_round` round-entry
// construction (evidence-directory creation and monotonic-round backfill are
// the EvidenceService's responsibility, not this method's).
func (q *QARecord) AppendRound(status, notes, date string) RoundEntry {
	q.Round++
	entry := RoundEntry{Round: q.Round, Status: status, Date: date, Notes: notes}
	q.RoundHistory = append(q.RoundHistory, entry)
	q.Metadata.Touch()
	return entry
}
