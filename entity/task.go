package entity

// Task is spec.md §3.1's unit of work. State lives only in the directory a
// Task's file occupies, never in frontmatter. Task satisfies
// RelationshipHolder and StateHolder directly, so the repository layer needs
// no type switch.
//
// Grounded on original_source/src/edison/core/task/models.py's `Task`
// dataclass.
type Task struct {
	ID             string         `yaml:"id" json:"id"`
	Title          string         `yaml:"title" json:"title"`
	Description    string         `yaml:"description,omitempty" json:"description,omitempty"`
	SessionID      string         `yaml:"sessionId,omitempty" json:"sessionId,omitempty"`
	Metadata       Metadata       `yaml:"metadata" json:"metadata"`
	StateHistory   []StateHistoryEntry `yaml:"stateHistory,omitempty" json:"stateHistory,omitempty"`
	Edges          []RelationshipEdge `yaml:"relationships,omitempty" json:"relationships,omitempty"`
	ClaimedAt      *string        `yaml:"claimedAt,omitempty" json:"claimedAt,omitempty"`
	LastActive     *string        `yaml:"lastActive,omitempty" json:"lastActive,omitempty"`
	ContinuationID string         `yaml:"continuationId,omitempty" json:"continuationId,omitempty"`
	Result         string         `yaml:"result,omitempty" json:"result,omitempty"`
	DelegatedTo    string         `yaml:"delegatedTo,omitempty" json:"delegatedTo,omitempty"`
	Integration    map[string]any `yaml:"integration,omitempty" json:"integration,omitempty"`

	// state is set by the repository from the entity's containing directory
	// and is deliberately excluded from yaml/json tags: it must never be
	// serialized into frontmatter (see frontmatter.go's RenderFrontmatter
	// guard).
	state string
}

// NewTask builds a Task in its zero state, ready for the repository to
// assign an initial directory-derived state.
func NewTask(id, title, createdBy, sessionID string) *Task {
	return &Task{
		ID:        id,
		Title:     title,
		SessionID: sessionID,
		Metadata:  NewMetadata(createdBy, sessionID),
	}
}

// GetID satisfies RelationshipHolder.
func (t *Task) GetID() string { return t.ID }

// State returns the directory-derived state last assigned by the
// repository.
func (t *Task) State() string { return t.state }

// SetState is called exclusively by the repository layer when an entity is
// loaded from, or moved into, a state directory.
func (t *Task) SetState(state string) { t.state = state }

// Relationships satisfies RelationshipHolder.
func (t *Task) Relationships() []RelationshipEdge { return t.Edges }

// SetRelationships satisfies RelationshipHolder.
func (t *Task) SetRelationships(edges []RelationshipEdge) { t.Edges = edges }

// ParentID returns the single parent edge's target, if any.
func (t *Task) ParentID() (string, bool) {
	return firstEdgeTarget(t.Edges, RelParent)
}

// ChildIDs returns every child edge's target.
func (t *Task) ChildIDs() []string {
	return edgesByType(t.Edges, RelChild)
}

// DependsOn returns every depends_on edge's target.
func (t *Task) DependsOn() []string {
	return edgesByType(t.Edges, RelDependsOn)
}

// Blocks returns every blocks edge's target.
func (t *Task) Blocks() []string {
	return edgesByType(t.Edges, RelBlocks)
}

// Related returns every related edge's target.
func (t *Task) Related() []string {
	return edgesByType(t.Edges, RelRelated)
}

// BundleRoot returns the single bundle_root edge's target, if any.
func (t *Task) BundleRoot() (string, bool) {
	return firstEdgeTarget(t.Edges, RelBundleRoot)
}

// RecordTransition appends a state_history entry, called by the state
// machine after a guarded transition succeeds (spec.md §4.3 step 5).
func (t *Task) RecordTransition(from, to, reason string, violations []string) {
	t.StateHistory = append(t.StateHistory, NewStateHistoryEntry(from, to, reason, violations))
	t.Metadata.Touch()
}
