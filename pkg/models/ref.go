package models

import (
	"fmt"
	"strings"
)

// ItemKind identifies which tier of the work hierarchy a reference points
// at. The set is closed: adding a kind is a schema change, not a runtime
// extension.
type ItemKind string

const (
	// KindEpic references an epic.
	KindEpic ItemKind = "epic"
	// KindStory references a story.
	KindStory ItemKind = "story"
	// KindTask references a task.
	KindTask ItemKind = "task"
)

// Valid returns true if the kind is a known value.
func (k ItemKind) Valid() bool {
	switch k {
	case KindEpic, KindStory, KindTask:
		return true
	default:
		return false
	}
}

// ItemRef is a typed reference to a work item.
type ItemRef struct {
	// Kind is the tier of the referenced item.
	Kind ItemKind `json:"kind"`
	// ID is the item's identifier within its kind.
	ID string `json:"id"`
}

// String renders the reference as kind:id.
func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// ParseRef parses a kind:id reference string, the inverse of String.
func ParseRef(s string) (ItemRef, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || kind == "" || id == "" {
		return ItemRef{}, fmt.Errorf("malformed item reference %q, want kind:id", s)
	}
	ref := ItemRef{Kind: ItemKind(kind), ID: id}
	if !ref.Kind.Valid() {
		return ItemRef{}, fmt.Errorf("unknown item kind %q in reference %q", kind, s)
	}
	return ref, nil
}

// Dependency is a directed edge: Item cannot be worked until DependsOn
// reaches a terminal status.
type Dependency struct {
	// Item is the dependent end of the edge.
	Item ItemRef `json:"item"`
	// DependsOn is the prerequisite end of the edge.
	DependsOn ItemRef `json:"depends_on"`
}
