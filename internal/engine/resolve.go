package engine

import (
	"context"

	"github.com/lmazure/gitlab-injector/internal/document"
	"github.com/lmazure/gitlab-injector/internal/registry"
)

// resolveLinks is the second pass: apply every deferred relationship in
// document order. All failures here are local — a link that cannot resolve
// through the registry is reported and skipped, and the remaining links of
// the same entity are still applied.
func (e *Engine) resolveLinks(ctx context.Context) error {
	for i := range e.links {
		item := &e.links[i]
		var err error
		switch {
		case item.epic != nil:
			err = e.resolveEpicLinks(ctx, item)
		case item.issue != nil:
			err = e.resolveIssueLinks(ctx, item)
		case item.milestone != nil:
			err = e.resolveMilestoneState(ctx, item)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// resolveLabelRefs maps label logical ids to remote names, reporting a gap
// for every id that never made it into the registry.
func (e *Engine) resolveLabelRefs(kind, name string, ids []int) []string {
	var names []string
	for _, id := range ids {
		ref, ok := e.Registry.Lookup(registry.KindLabel, lid(id))
		if !ok {
			e.gap("%s %q: label %d was never materialized, skipping", kind, name, id)
			continue
		}
		names = append(names, ref.Name)
	}
	return names
}

// unionLabels merges wanted names into the current remote label set. The
// result is nil when nothing new would be added, so callers can skip the
// update call entirely.
func unionLabels(current, wanted []string) []string {
	have := make(map[string]bool, len(current))
	for _, l := range current {
		have[l] = true
	}
	merged := append([]string(nil), current...)
	added := false
	for _, w := range wanted {
		if !have[w] {
			have[w] = true
			merged = append(merged, w)
			added = true
		}
	}
	if !added {
		return nil
	}
	return merged
}

func (e *Engine) resolveEpicLinks(ctx context.Context, item *linkItem) error {
	ep := item.epic

	if wanted := e.resolveLabelRefs("epic", ep.Title, ep.LabelIDs); len(wanted) > 0 {
		if merged := unionLabels(item.labels, wanted); merged != nil {
			if _, err := e.Platform.UpdateEpic(ctx, item.ref.GroupID, item.ref.IID,
				map[string]interface{}{"labels": merged}); err != nil {
				return err
			}
			e.msg("Labeled epic %q: %v", ep.Title, wanted)
			e.stats.Linked++
		}
	}

	if ep.ParentEpicID != 0 {
		parent, ok := e.Registry.Lookup(registry.KindEpic, lid(ep.ParentEpicID))
		if !ok {
			e.gap("epic %q: parent epic %d was never materialized, skipping", ep.Title, ep.ParentEpicID)
		} else {
			if _, err := e.Platform.UpdateEpic(ctx, item.ref.GroupID, item.ref.IID,
				map[string]interface{}{"parent_id": parent.ID}); err != nil {
				return err
			}
			e.msg("Set parent of epic %q to %q", ep.Title, parent.Name)
			e.stats.Linked++
		}
	}

	if ep.State == document.StateClosed && item.state != document.StateClosed {
		if _, err := e.Platform.UpdateEpic(ctx, item.ref.GroupID, item.ref.IID,
			map[string]interface{}{"state_event": "close"}); err != nil {
			return err
		}
		e.msg("Closed epic: %s", ep.Title)
		e.stats.Linked++
	}
	return nil
}

func (e *Engine) resolveIssueLinks(ctx context.Context, item *linkItem) error {
	is := item.issue
	updates := make(map[string]interface{})

	wanted := e.resolveLabelRefs("issue", is.Title, is.LabelIDs)
	var labeled []string
	if len(wanted) > 0 {
		if merged := unionLabels(item.labels, wanted); merged != nil {
			updates["labels"] = merged
			labeled = wanted
		}
	}

	if is.MilestoneID != 0 {
		ms, ok := e.Registry.Lookup(registry.KindMilestone, lid(is.MilestoneID))
		if !ok {
			e.gap("issue %q: milestone %d was never materialized, skipping", is.Title, is.MilestoneID)
		} else {
			updates["milestone_id"] = ms.ID
		}
	}

	if is.IterationID != 0 {
		it, ok := e.Registry.Lookup(registry.KindIteration, lid(is.IterationID))
		if !ok {
			e.gap("issue %q: iteration %d was never materialized, skipping", is.Title, is.IterationID)
		} else {
			// No structured field exists for the iteration on the issue
			// API; the link rides in the description as a quick action.
			updates["description"] = AppendIterationDirective(is.Description, it.Name)
		}
	}

	if is.Weight > 0 {
		updates["weight"] = is.Weight
	}

	if ids := e.resolveAssignees(is); len(ids) > 0 {
		updates["assignee_ids"] = ids
	}

	if len(updates) > 0 {
		if _, err := e.Platform.UpdateIssue(ctx, item.ref.ProjectID, item.ref.IID, updates); err != nil {
			return err
		}
		if len(labeled) > 0 {
			e.msg("Labeled issue %q: %v", is.Title, labeled)
		}
		e.msg("Updated issue: %s", is.Title)
		e.stats.Linked++
	}

	if is.ParentEpicID != 0 {
		parent, ok := e.Registry.Lookup(registry.KindEpic, lid(is.ParentEpicID))
		if !ok {
			e.gap("issue %q: epic %d was never materialized, skipping", is.Title, is.ParentEpicID)
		} else {
			if err := e.Platform.AssignIssueToEpic(ctx, parent.GroupID, parent.IID, item.ref.ID); err != nil {
				return err
			}
			e.msg("Linked issue %q to epic %q", is.Title, parent.Name)
			e.stats.Linked++
		}
	}

	if is.State == document.StateClosed && item.state != document.StateClosed {
		if _, err := e.Platform.UpdateIssue(ctx, item.ref.ProjectID, item.ref.IID,
			map[string]interface{}{"state_event": "close"}); err != nil {
			return err
		}
		e.msg("Closed issue: %s", is.Title)
		e.stats.Linked++
	}
	return nil
}

// resolveAssignees maps assignee logical ids to remote actor ids. A user
// that never resolved is a gap; the remaining assignees still apply.
func (e *Engine) resolveAssignees(is *document.Issue) []int {
	var ids []int
	for _, uid := range is.AssigneeIDs {
		ref, ok := e.Registry.Lookup(registry.KindUser, lid(uid))
		if !ok {
			e.gap("issue %q: assignee user %d is not resolved, skipping", is.Title, uid)
			continue
		}
		ids = append(ids, ref.ID)
	}
	return ids
}

func (e *Engine) resolveMilestoneState(ctx context.Context, item *linkItem) error {
	m := item.milestone
	if item.state == document.StateClosed {
		return nil
	}
	if _, err := e.Platform.UpdateMilestone(ctx, item.cont, item.ref.ID,
		map[string]interface{}{"state_event": "close"}); err != nil {
		return err
	}
	e.msg("Closed milestone: %s", m.Title)
	e.stats.Linked++
	return nil
}
