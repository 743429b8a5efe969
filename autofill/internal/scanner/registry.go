package scanner

import "github.com/infilloai/infillo-sub001/autofill/suggest"

// Registry records which candidate handles have been processed during the
// current Active period, guaranteeing at-most-once listener attachment per
// element. Handles live in the page as data attributes: when an element is
// removed its handle disappears with it, and a re-inserted element is stamped
// fresh, so it reads as unseen again. Prune keeps the set from outliving the
// elements it refers to.
type Registry struct {
	seen map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]struct{})}
}

// MarkSeen records a handle. Returns true exactly once per handle: on the
// first call. Subsequent calls for the same handle return false.
func (r *Registry) MarkSeen(handle string) bool {
	if handle == "" {
		return false
	}
	if _, ok := r.seen[handle]; ok {
		return false
	}
	r.seen[handle] = struct{}{}
	return true
}

// Seen reports whether a handle was already marked.
func (r *Registry) Seen(handle string) bool {
	_, ok := r.seen[handle]
	return ok
}

// Prune drops every handle not present in the current candidate set. Elements
// removed from the tree stop being tracked; if the host re-inserts one, its
// fresh handle makes it discoverable again.
func (r *Registry) Prune(current []suggest.FieldDescriptor) {
	live := make(map[string]struct{}, len(current))
	for _, fd := range current {
		live[fd.Handle] = struct{}{}
	}
	for h := range r.seen {
		if _, ok := live[h]; !ok {
			delete(r.seen, h)
		}
	}
}

// Len returns the number of tracked handles.
func (r *Registry) Len() int { return len(r.seen) }

// Reset clears the registry. Called on engine stop: the next Active period
// starts with nothing seen.
func (r *Registry) Reset() {
	r.seen = make(map[string]struct{})
}
