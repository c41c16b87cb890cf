package document

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError aggregates every schema problem found in a document. It is
// fatal: no remote call may be issued for an invalid document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid document: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid document: %d problems:\n  - %s",
		len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

var colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// validator accumulates problems and the declared logical ids per kind while
// walking the document.
type validator struct {
	problems []string

	users      map[int]bool
	labels     map[int]bool
	milestones map[int]bool
	iterations map[int]bool
	epics      map[int]bool
	issues     map[int]bool
}

// Validate checks schema rules that the YAML decoder cannot express:
// logical-id uniqueness per kind, state and role vocabularies, label color
// format, and that every reference field points at a declared logical id of
// the proper kind. Forward references are legal here; the engine decides
// their fate at link time.
func (d *Document) Validate() error {
	v := &validator{
		users:      make(map[int]bool),
		labels:     make(map[int]bool),
		milestones: make(map[int]bool),
		iterations: make(map[int]bool),
		epics:      make(map[int]bool),
		issues:     make(map[int]bool),
	}

	// First sweep: declare every logical id so references can be checked
	// regardless of document order.
	for _, u := range d.Users {
		v.declare(v.users, "user", u.ID)
		if u.Username == "" {
			v.errf("user %d: username is required", u.ID)
		}
	}
	for i := range d.Groups {
		v.declareGroup(&d.Groups[i])
	}

	// Second sweep: vocabulary and reference checks.
	for i := range d.Groups {
		v.checkGroup(&d.Groups[i])
	}

	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}
	return nil
}

func (v *validator) errf(format string, args ...interface{}) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) declare(seen map[int]bool, kind string, id int) {
	if id <= 0 {
		v.errf("%s id %d: logical ids must be positive", kind, id)
		return
	}
	if seen[id] {
		v.errf("duplicate %s id %d", kind, id)
		return
	}
	seen[id] = true
}

func (v *validator) declareGroup(g *Group) {
	if g.Name == "" {
		v.errf("group with empty name")
	}
	for _, l := range g.Labels {
		v.declare(v.labels, "label", l.ID)
	}
	for _, it := range g.Iterations {
		v.declare(v.iterations, "iteration", it.ID)
	}
	for _, m := range g.Milestones {
		v.declare(v.milestones, "milestone", m.ID)
	}
	for _, e := range g.Epics {
		v.declare(v.epics, "epic", e.ID)
	}
	for i := range g.Projects {
		p := &g.Projects[i]
		if p.Name == "" {
			v.errf("group %q: project with empty name", g.Name)
		}
		for _, m := range p.Milestones {
			v.declare(v.milestones, "milestone", m.ID)
		}
		for _, is := range p.Issues {
			v.declare(v.issues, "issue", is.ID)
		}
	}
	for i := range g.Subgroups {
		v.declareGroup(&g.Subgroups[i])
	}
}

func (v *validator) checkGroup(g *Group) {
	for _, l := range g.Labels {
		if l.Name == "" {
			v.errf("label %d: name is required", l.ID)
		}
		if l.Color != "" && !colorPattern.MatchString(l.Color) {
			v.errf("label %q: color %q is not #RGB or #RRGGBB", l.Name, l.Color)
		}
	}
	for _, it := range g.Iterations {
		v.checkState("iteration", it.Title, it.State, StateActive, StateClosed)
	}
	for _, m := range g.Milestones {
		v.checkState("milestone", m.Title, m.State, StateActive, StateClosed)
	}
	for _, e := range g.Epics {
		if e.Title == "" {
			v.errf("epic %d: title is required", e.ID)
		}
		v.checkState("epic", e.Title, e.State, StateOpened, StateClosed)
		v.checkRefs("epic", e.Title, v.labels, "label", e.LabelIDs)
		if e.ParentEpicID != 0 && !v.epics[e.ParentEpicID] {
			v.errf("epic %q: parent_epic_id %d is not a declared epic", e.Title, e.ParentEpicID)
		}
	}
	v.checkMembers("group "+g.Name, g.Members)
	for i := range g.Projects {
		v.checkProject(&g.Projects[i])
	}
	for i := range g.Subgroups {
		v.checkGroup(&g.Subgroups[i])
	}
}

func (v *validator) checkProject(p *Project) {
	v.checkMembers("project "+p.Name, p.Members)
	for _, m := range p.Milestones {
		v.checkState("milestone", m.Title, m.State, StateActive, StateClosed)
	}
	for _, is := range p.Issues {
		if is.Title == "" {
			v.errf("issue %d: title is required", is.ID)
		}
		v.checkState("issue", is.Title, is.State, StateOpened, StateClosed)
		v.checkRefs("issue", is.Title, v.labels, "label", is.LabelIDs)
		v.checkRefs("issue", is.Title, v.users, "user", is.AssigneeIDs)
		if is.ParentEpicID != 0 && !v.epics[is.ParentEpicID] {
			v.errf("issue %q: parent_epic_id %d is not a declared epic", is.Title, is.ParentEpicID)
		}
		if is.MilestoneID != 0 && !v.milestones[is.MilestoneID] {
			v.errf("issue %q: milestone_id %d is not a declared milestone", is.Title, is.MilestoneID)
		}
		if is.IterationID != 0 && !v.iterations[is.IterationID] {
			v.errf("issue %q: iteration_id %d is not a declared iteration", is.Title, is.IterationID)
		}
		if is.Weight < 0 {
			v.errf("issue %q: weight must not be negative", is.Title)
		}
	}
}

func (v *validator) checkMembers(where string, members []Member) {
	for _, m := range members {
		if !v.users[m.UserID] {
			v.errf("%s: member user_id %d is not a declared user", where, m.UserID)
		}
		if _, ok := AccessLevels[strings.ToLower(m.Role)]; !ok {
			v.errf("%s: unknown role %q", where, m.Role)
		}
	}
}

func (v *validator) checkState(kind, name, state string, allowed ...string) {
	if state == "" {
		return // defaults to opened/active at materialization
	}
	for _, a := range allowed {
		if state == a {
			return
		}
	}
	v.errf("%s %q: state %q is not one of %v", kind, name, state, allowed)
}

func (v *validator) checkRefs(kind, name string, seen map[int]bool, refKind string, ids []int) {
	for _, id := range ids {
		if !seen[id] {
			v.errf("%s %q: %s_id %d is not a declared %s", kind, name, refKind, id, refKind)
		}
	}
}
