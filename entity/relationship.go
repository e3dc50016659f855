package entity

import (
	"sort"
	"strings"

	"github.com/leeroybrun/edison-sub004/edisonerrors"
)

// RelationshipType is one of the six canonical edge kinds from spec.md §3.1.
type RelationshipType string

const (
	RelParent     RelationshipType = "parent"
	RelChild      RelationshipType = "child"
	RelDependsOn  RelationshipType = "depends_on"
	RelBlocks     RelationshipType = "blocks"
	RelRelated    RelationshipType = "related"
	RelBundleRoot RelationshipType = "bundle_root"
)

// RelationshipEdge is a single directed edge in an entity's relationship
// list, grounded on task/relationships/codec.py's `RelationshipEdge` dict
// shape (`{"type": ..., "target": ...}`).
type RelationshipEdge struct {
	Type   RelationshipType `yaml:"type" json:"type"`
	Target string           `yaml:"target" json:"target"`
}

// singletonTypes mirrors normalize_relationships's
// `singleton_types=("parent", "bundle_root")` argument.
var singletonTypes = map[RelationshipType]bool{
	RelParent:     true,
	RelBundleRoot: true,
}

// NormalizeEdges enforces the invariants from spec.md §3.2: no self-edges
// (filtered by the caller when an owner id is known, via RemoveSelfEdges),
// no duplicates, stable order by (type, target), and at most one edge per
// singleton type (the first occurrence wins; callers needing fail-closed
// single-parent enforcement do that check themselves before calling this,
// matching task/relationships/codec.py's `normalize_edges` contract of doing
// best-effort normalization rather than raising).
func NormalizeEdges(edges []RelationshipEdge) []RelationshipEdge {
	seen := map[RelationshipEdge]bool{}
	seenSingleton := map[RelationshipType]bool{}
	out := make([]RelationshipEdge, 0, len(edges))

	for _, e := range edges {
		e.Type = RelationshipType(strings.TrimSpace(string(e.Type)))
		e.Target = strings.TrimSpace(e.Target)
		if e.Type == "" || e.Target == "" {
			continue
		}
		if singletonTypes[e.Type] {
			if seenSingleton[e.Type] {
				continue
			}
			seenSingleton[e.Type] = true
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// RemoveSelfEdges drops any edge whose target equals ownerID, implementing
// the "no self edges" half of the invariant that NormalizeEdges itself
// leaves to the caller (it has no notion of which entity the edge list
// belongs to).
func RemoveSelfEdges(edges []RelationshipEdge, ownerID string) []RelationshipEdge {
	out := make([]RelationshipEdge, 0, len(edges))
	for _, e := range edges {
		if e.Target == ownerID {
			continue
		}
		out = append(out, e)
	}
	return out
}

func edgesByType(edges []RelationshipEdge, t RelationshipType) []string {
	var out []string
	for _, e := range edges {
		if e.Type == t {
			out = append(out, e.Target)
		}
	}
	return out
}

func firstEdgeTarget(edges []RelationshipEdge, t RelationshipType) (string, bool) {
	for _, e := range edges {
		if e.Type == t {
			return e.Target, true
		}
	}
	return "", false
}

func removeEdges(edges []RelationshipEdge, t RelationshipType, targets map[string]bool) []RelationshipEdge {
	out := make([]RelationshipEdge, 0, len(edges))
	for _, e := range edges {
		if e.Type != t {
			out = append(out, e)
			continue
		}
		if targets == nil {
			continue
		}
		if targets[e.Target] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// inverseType maps a relationship type to its paired inverse, or "" for
// bundle_root which is deliberately directed-only. Grounded on
// task/relationships/service.py's `_INVERSE` table.
var inverseType = map[RelationshipType]RelationshipType{
	RelParent:    RelChild,
	RelChild:     RelParent,
	RelDependsOn: RelBlocks,
	RelBlocks:    RelDependsOn,
	RelRelated:   RelRelated,
}

// RelationshipHolder is any entity whose relationship list the
// RelationshipService can mutate and persist.
type RelationshipHolder interface {
	GetID() string
	Relationships() []RelationshipEdge
	SetRelationships([]RelationshipEdge)
}

// RelationshipStore loads and saves RelationshipHolder entities by id,
// letting RelationshipService stay repository-agnostic (Task and QA records
// both implement RelationshipHolder).
type RelationshipStore[T RelationshipHolder] interface {
	Get(id string) (T, error)
	Save(entity T) error
}

// RelationshipService is the single source of truth for edge mutation,
// grounded on task/relationships/service.py's TaskRelationshipService: it
// enforces single-parent/single-bundle-root invariants and keeps paired
// inverse edges in sync across both entities it touches.
type RelationshipService[T RelationshipHolder] struct {
	store RelationshipStore[T]
}

func NewRelationshipService[T RelationshipHolder](store RelationshipStore[T]) *RelationshipService[T] {
	return &RelationshipService[T]{store: store}
}

// Add adds relType(sourceID -> targetID), maintaining the inverse edge (or
// enforcing bundle_root's directed-only contract), failing closed on a
// conflicting single-parent/single-bundle-root unless force is set.
func (s *RelationshipService[T]) Add(sourceID, relType, targetID string, force bool) error {
	t := RelationshipType(strings.TrimSpace(relType))
	sourceID, targetID = strings.TrimSpace(sourceID), strings.TrimSpace(targetID)
	if sourceID == "" || targetID == "" || t == "" {
		return edisonerrors.New(edisonerrors.KindPersistence, "add relationship requires source, type, and target")
	}
	if sourceID == targetID {
		return edisonerrors.New(edisonerrors.KindPersistence, "cannot add relationship to self")
	}

	a, err := s.store.Get(sourceID)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindEntityNotFound, "source entity not found: "+sourceID, err)
	}
	b, err := s.store.Get(targetID)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindEntityNotFound, "target entity not found: "+targetID, err)
	}

	aEdges := NormalizeEdges(a.Relationships())
	bEdges := NormalizeEdges(b.Relationships())

	if t == RelBundleRoot {
		existing, ok := firstEdgeTarget(aEdges, RelBundleRoot)
		if ok && existing != targetID {
			if !force {
				return edisonerrors.New(edisonerrors.KindPersistence, sourceID+" already has a bundle_root; use force to replace")
			}
			aEdges = removeEdges(aEdges, RelBundleRoot, nil)
		}
		aEdges = NormalizeEdges(append(aEdges, RelationshipEdge{Type: RelBundleRoot, Target: targetID}))
		a.SetRelationships(aEdges)
		return s.store.Save(a)
	}

	inv, ok := inverseType[t]
	if !ok {
		return edisonerrors.New(edisonerrors.KindPersistence, "unknown relationship type: "+string(t))
	}

	if t == RelParent || t == RelChild {
		childEdges := aEdges
		childID := sourceID
		desiredParent := targetID
		if t == RelChild {
			childEdges = bEdges
			childID = targetID
			desiredParent = sourceID
		}
		if existing, ok := firstEdgeTarget(childEdges, RelParent); ok && existing != desiredParent {
			if !force {
				return edisonerrors.New(edisonerrors.KindPersistence, childID+" already has parent "+existing+"; single-parent is enforced")
			}
			childEdges = removeEdges(childEdges, RelParent, nil)
			if oldParent, err := s.store.Get(existing); err == nil {
				oldEdges := removeEdges(NormalizeEdges(oldParent.Relationships()), RelChild, map[string]bool{childID: true})
				oldParent.SetRelationships(NormalizeEdges(oldEdges))
				_ = s.store.Save(oldParent)
			}
			if t == RelParent {
				aEdges = childEdges
			} else {
				bEdges = childEdges
			}
		}
	}

	aEdges = append(aEdges, RelationshipEdge{Type: t, Target: targetID})
	if t == RelRelated {
		bEdges = append(bEdges, RelationshipEdge{Type: RelRelated, Target: sourceID})
	} else {
		bEdges = append(bEdges, RelationshipEdge{Type: inv, Target: sourceID})
	}

	a.SetRelationships(NormalizeEdges(aEdges))
	b.SetRelationships(NormalizeEdges(bEdges))

	if err := s.store.Save(a); err != nil {
		return err
	}
	return s.store.Save(b)
}

// Remove removes relType(sourceID -> targetID) and its inverse (if any).
func (s *RelationshipService[T]) Remove(sourceID, relType, targetID string) error {
	t := RelationshipType(strings.TrimSpace(relType))
	sourceID, targetID = strings.TrimSpace(sourceID), strings.TrimSpace(targetID)
	if sourceID == "" || targetID == "" || t == "" {
		return edisonerrors.New(edisonerrors.KindPersistence, "remove relationship requires source, type, and target")
	}
	if sourceID == targetID {
		return edisonerrors.New(edisonerrors.KindPersistence, "cannot remove relationship to self")
	}

	a, err := s.store.Get(sourceID)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindEntityNotFound, "source entity not found: "+sourceID, err)
	}
	b, err := s.store.Get(targetID)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindEntityNotFound, "target entity not found: "+targetID, err)
	}

	aEdges := NormalizeEdges(a.Relationships())

	if t == RelBundleRoot {
		aEdges = NormalizeEdges(removeEdges(aEdges, RelBundleRoot, map[string]bool{targetID: true}))
		a.SetRelationships(aEdges)
		return s.store.Save(a)
	}

	inv, ok := inverseType[t]
	if !ok {
		return edisonerrors.New(edisonerrors.KindPersistence, "unknown relationship type: "+string(t))
	}

	bEdges := NormalizeEdges(b.Relationships())
	aEdges = removeEdges(aEdges, t, map[string]bool{targetID: true})
	if t == RelRelated {
		bEdges = removeEdges(bEdges, RelRelated, map[string]bool{sourceID: true})
	} else {
		bEdges = removeEdges(bEdges, inv, map[string]bool{sourceID: true})
	}

	a.SetRelationships(NormalizeEdges(aEdges))
	b.SetRelationships(NormalizeEdges(bEdges))

	if err := s.store.Save(a); err != nil {
		return err
	}
	return s.store.Save(b)
}
