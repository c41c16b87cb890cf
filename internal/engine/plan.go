package engine

import (
	"github.com/lmazure/gitlab-injector/internal/document"
)

// planRun walks the document without touching the remote platform and
// reports every entity that would be materialized. Capability gaps and
// reuse decisions depend on remote state, so the plan assumes creation for
// everything; the relationship pass is skipped entirely.
func (e *Engine) planRun(doc *document.Document) {
	for _, u := range doc.Users {
		e.msg("[dry-run] Would resolve user %d (%s)", u.ID, u.Username)
	}

	var stack []groupWork
	for i := len(doc.Groups) - 1; i >= 0; i-- {
		stack = append(stack, groupWork{group: &doc.Groups[i], parentPath: e.ParentPath})
	}

	for len(stack) > 0 {
		w := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		path := document.Slug(w.group.Name)
		if w.parentPath != "" {
			path = w.parentPath + "/" + path
		}
		e.plan("group", path)

		for _, l := range w.group.Labels {
			e.plan("label", l.Name)
		}
		for _, it := range w.group.Iterations {
			e.plan("iteration", it.Title)
		}
		for _, m := range w.group.Milestones {
			e.plan("milestone", m.Title)
		}
		for _, ep := range w.group.Epics {
			e.plan("epic", ep.Title)
		}
		for _, p := range w.group.Projects {
			e.plan("project", p.Name)
			for _, m := range p.Milestones {
				e.plan("milestone", m.Title)
			}
			for _, is := range p.Issues {
				e.plan("issue", is.Title)
			}
		}

		for i := len(w.group.Subgroups) - 1; i >= 0; i-- {
			stack = append(stack, groupWork{group: &w.group.Subgroups[i], parentPath: path})
		}
	}

	e.msg("[dry-run] Relationship pass skipped (depends on remote state)")
}

func (e *Engine) plan(kind, name string) {
	e.msg("[dry-run] Would create %s: %s", kind, name)
	e.stats.Created++
}
