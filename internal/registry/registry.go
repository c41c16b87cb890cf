// Package registry maintains the mapping from document-local logical ids to
// remote identifiers for the duration of one injection run.
//
// The registry is append-only: once a logical id is bound to a remote ref it
// stays bound until the run ends. Lookups for unbound ids return absence, not
// an error, so callers can degrade to a skip-with-warning.
package registry

import (
	"fmt"
	"sort"
)

// Kind identifies an entity kind. Each kind has its own id namespace.
type Kind string

const (
	KindGroup     Kind = "group"
	KindProject   Kind = "project"
	KindLabel     Kind = "label"
	KindMilestone Kind = "milestone"
	KindIteration Kind = "iteration"
	KindEpic      Kind = "epic"
	KindIssue     Kind = "issue"
	KindUser      Kind = "user"
)

// Ref is the remote identity recorded for a materialized entity.
//
// Labels are addressed by name in the remote API, so for labels Name is the
// authoritative key and ID may be zero. Epics, issues and milestones carry
// both the global ID and the container-scoped IID plus the owning container,
// which the relationship pass needs to issue update calls.
type Ref struct {
	ID        int    // global remote id
	IID       int    // container-scoped id (epics, issues, milestones)
	Name      string // remote display name; authoritative for labels
	GroupID   int    // owning group, when container-scoped
	ProjectID int    // owning project, when container-scoped
}

// Registry holds one write-once map per entity kind. It is scoped to a
// single run and passed explicitly to every component that needs it; it is
// never a process-wide singleton.
type Registry struct {
	refs map[Kind]map[string]Ref
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{refs: make(map[Kind]map[string]Ref)}
}

// Bind records the remote ref for a logical id. Binding an id that is
// already bound is an error: the registry never remaps an id within a run.
func (r *Registry) Bind(kind Kind, logicalID string, ref Ref) error {
	m := r.refs[kind]
	if m == nil {
		m = make(map[string]Ref)
		r.refs[kind] = m
	}
	if _, ok := m[logicalID]; ok {
		return fmt.Errorf("%s %q is already bound", kind, logicalID)
	}
	m[logicalID] = ref
	return nil
}

// Lookup returns the remote ref bound to a logical id. The second result is
// false when the id was never bound; callers treat that as a reference gap,
// not a failure.
func (r *Registry) Lookup(kind Kind, logicalID string) (Ref, bool) {
	ref, ok := r.refs[kind][logicalID]
	return ref, ok
}

// Len reports how many ids are bound for a kind.
func (r *Registry) Len(kind Kind) int {
	return len(r.refs[kind])
}

// IDs returns the bound logical ids for a kind, sorted. Used in diagnostics
// and tests.
func (r *Registry) IDs(kind Kind) []string {
	ids := make([]string, 0, len(r.refs[kind]))
	for id := range r.refs[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
