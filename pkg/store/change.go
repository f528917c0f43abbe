package store

import "github.com/surrealdb/surrealgeo/pkg/geohash"

type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeAdded
	ChangeModified
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	default:
		return "none"
	}
}

// Change is one classified document change for a single watch.
type Change struct {
	Kind ChangeKind
	ID   string
	// Document is the new state for Added and Modified, and the current state
	// (nil when deleted) for Removed.
	Document *Document
	// Rev orders the change against an initial load. Zero means unknown.
	Rev uint64
}

// Classify turns a write, seen as the document before (prev) and after (cur),
// into the change a watch on r observes. Either side may be nil.
func Classify(r geohash.Range, prev, cur *Document) ChangeKind {
	wasIn := prev != nil && r.Contains(prev.Geohash)
	isIn := cur != nil && r.Contains(cur.Geohash)

	switch {
	case !wasIn && isIn:
		return ChangeAdded
	case wasIn && isIn:
		return ChangeModified
	case wasIn && !isIn:
		return ChangeRemoved
	default:
		return ChangeNone
	}
}

// NewChange classifies a write for r. ok is false when the watch does not see it.
func NewChange(r geohash.Range, id string, prev, cur *Document, rev uint64) (c Change, ok bool) {
	kind := Classify(r, prev, cur)
	if kind == ChangeNone {
		return Change{}, false
	}
	return Change{Kind: kind, ID: id, Document: cur, Rev: rev}, true
}
