package engine

import (
	"context"
	"errors"

	"github.com/lmazure/gitlab-injector/internal/document"
	"github.com/lmazure/gitlab-injector/internal/gitlab"
	"github.com/lmazure/gitlab-injector/internal/registry"
)

// groupRef identifies a materialized group together with its capability
// descriptor. The descriptor is probed once here; everything downstream
// queries it as a plain field.
type groupRef struct {
	id       int
	fullPath string
	caps     gitlab.Capabilities
}

// groupWork is one worklist entry: a document group node and the remote
// parent it nests under.
type groupWork struct {
	group      *document.Group
	parentID   int
	parentPath string
}

// linkItem defers one entity's relationship work to the second pass. The
// remote label/state snapshot taken at materialization time is what makes
// label attachment a set-union instead of blind appends.
type linkItem struct {
	epic      *document.Epic
	issue     *document.Issue
	milestone *document.Milestone

	ref    registry.Ref
	cont   gitlab.Container // for milestones
	labels []string         // remote labels at materialization time
	state  string           // remote state at materialization time
}

// materialize is the first pass: visit every group depth-first using an
// explicit stack, and within each group visit labels, iterations,
// milestones, epics, members, projects (with their members, milestones and
// issues), then subgroups. A container is always materialized before
// anything nested inside it.
func (e *Engine) materialize(ctx context.Context, doc *document.Document) error {
	rootID := 0
	rootPath := ""
	if e.ParentPath != "" {
		parent, err := e.Platform.GetGroupByPath(ctx, e.ParentPath)
		if err != nil {
			return err
		}
		if parent == nil {
			return &ContainerCreateError{Kind: "group", Name: e.ParentPath,
				Err: errParentNotFound}
		}
		rootID = parent.ID
		rootPath = parent.FullPath
	}

	var stack []groupWork
	for i := len(doc.Groups) - 1; i >= 0; i-- {
		stack = append(stack, groupWork{group: &doc.Groups[i], parentID: rootID, parentPath: rootPath})
	}

	for len(stack) > 0 {
		w := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ref, err := e.materializeGroup(ctx, w)
		if err != nil {
			var cce *ContainerCreateError
			if errors.As(err, &cce) {
				// The subtree is lost; siblings still run. The failure is
				// kept and returned when the run ends.
				if e.firstSubtreeErr == nil {
					e.firstSubtreeErr = cce
				}
				e.warn("Skipping contents of group %q: %v", w.group.Name, cce.Err)
				continue
			}
			return err
		}

		if err := e.materializeGroupContents(ctx, w.group, ref); err != nil {
			return err
		}

		for i := len(w.group.Subgroups) - 1; i >= 0; i-- {
			stack = append(stack, groupWork{
				group:      &w.group.Subgroups[i],
				parentID:   ref.id,
				parentPath: ref.fullPath,
			})
		}
	}
	return nil
}

func (e *Engine) materializeGroup(ctx context.Context, w groupWork) (*groupRef, error) {
	slug := document.Slug(w.group.Name)
	fullPath := slug
	if w.parentPath != "" {
		fullPath = w.parentPath + "/" + slug
	}

	existing, err := e.Platform.GetGroupByPath(ctx, fullPath)
	if err != nil {
		return nil, err
	}

	var grp *gitlab.Group
	if existing != nil {
		if e.Policy == PolicyFail {
			return nil, &ConflictError{Kind: "group", Name: fullPath}
		}
		e.msg("Group already exists: %s", fullPath)
		e.stats.Reused++
		grp = existing
	} else {
		created, err := e.Platform.CreateGroup(ctx, gitlab.GroupFields{
			Name:        w.group.Name,
			Path:        slug,
			Description: w.group.Description,
			ParentID:    w.parentID,
		})
		if err != nil {
			return nil, &ContainerCreateError{Kind: "group", Name: w.group.Name, Err: err}
		}
		e.msg("Created group: %s", fullPath)
		e.stats.Created++
		grp = created
	}

	caps, err := e.Platform.ProbeCapabilities(ctx, grp.ID)
	if err != nil {
		return nil, err
	}

	if _, bound := e.Registry.Lookup(registry.KindGroup, fullPath); !bound {
		if err := e.Registry.Bind(registry.KindGroup, fullPath, registry.Ref{ID: grp.ID, Name: fullPath}); err != nil {
			return nil, err
		}
	} else {
		e.warn("Group %q is declared more than once", fullPath)
	}

	return &groupRef{id: grp.ID, fullPath: fullPath, caps: caps}, nil
}

func (e *Engine) materializeGroupContents(ctx context.Context, g *document.Group, ref *groupRef) error {
	cont := gitlab.GroupContainer(ref.id)

	for i := range g.Labels {
		if err := e.materializeLabel(ctx, cont, &g.Labels[i]); err != nil {
			return err
		}
	}
	for i := range g.Iterations {
		if err := e.materializeIteration(ctx, ref, &g.Iterations[i]); err != nil {
			return err
		}
	}
	for i := range g.Milestones {
		if err := e.materializeMilestone(ctx, cont, ref, &g.Milestones[i]); err != nil {
			return err
		}
	}
	for i := range g.Epics {
		if err := e.materializeEpic(ctx, ref, &g.Epics[i]); err != nil {
			return err
		}
	}
	for _, m := range g.Members {
		if err := e.materializeMember(ctx, cont, "group "+ref.fullPath, m); err != nil {
			return err
		}
	}
	for i := range g.Projects {
		if err := e.materializeProject(ctx, ref, &g.Projects[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) materializeLabel(ctx context.Context, cont gitlab.Container, l *document.Label) error {
	existing, err := e.Platform.FindLabel(ctx, cont, l.Name)
	if err != nil {
		return err
	}

	var remote *gitlab.Label
	if existing != nil {
		if e.Policy == PolicyFail {
			return &ConflictError{Kind: "label", Name: l.Name}
		}
		e.msg("Label already exists: %s", l.Name)
		e.stats.Reused++
		remote = existing
	} else {
		created, err := e.Platform.CreateLabel(ctx, cont, gitlab.LabelFields{
			Name:        l.Name,
			Color:       l.Color,
			Description: l.Description,
		})
		if err != nil {
			return err
		}
		e.msg("Created label: %s", l.Name)
		e.stats.Created++
		remote = created
	}

	// Labels are keyed by name in every downstream API call.
	return e.Registry.Bind(registry.KindLabel, lid(l.ID), registry.Ref{ID: remote.ID, Name: remote.Name})
}

func (e *Engine) materializeIteration(ctx context.Context, ref *groupRef, it *document.Iteration) error {
	if !ref.caps.Iterations {
		e.capSkip("Group %s does not support iterations (tier-gated), skipping %q", ref.fullPath, it.Title)
		return nil
	}

	existing, err := e.Platform.FindIteration(ctx, ref.id, it.Title)
	if err != nil {
		return err
	}

	var remote *gitlab.Iteration
	if existing != nil {
		if e.Policy == PolicyFail {
			return &ConflictError{Kind: "iteration", Name: it.Title}
		}
		e.msg("Iteration already exists: %s", it.Title)
		e.stats.Reused++
		remote = existing
	} else {
		created, err := e.Platform.CreateIteration(ctx, ref.fullPath, gitlab.IterationFields{
			Title:       it.Title,
			Description: it.Description,
			StartDate:   it.StartDate,
			DueDate:     it.DueDate,
		})
		if err != nil {
			// The probe can pass while the mutation is still denied on
			// lower tiers; that is a capability gap, not a failure.
			if gitlab.IsForbidden(err) {
				e.capSkip("Iteration creation denied for group %s (tier-gated), skipping %q", ref.fullPath, it.Title)
				return nil
			}
			return err
		}
		e.msg("Created iteration: %s", it.Title)
		e.stats.Created++
		remote = created
	}

	return e.Registry.Bind(registry.KindIteration, lid(it.ID), registry.Ref{
		ID: remote.ID, IID: remote.IID, GroupID: ref.id, Name: remote.Title,
	})
}

func (e *Engine) materializeMilestone(ctx context.Context, cont gitlab.Container, ref *groupRef, m *document.Milestone) error {
	existing, err := e.Platform.FindMilestone(ctx, cont, m.Title)
	if err != nil {
		return err
	}

	var remote *gitlab.Milestone
	if existing != nil {
		if e.Policy == PolicyFail {
			return &ConflictError{Kind: "milestone", Name: m.Title}
		}
		e.msg("Milestone already exists: %s", m.Title)
		e.stats.Reused++
		remote = existing
	} else {
		created, err := e.Platform.CreateMilestone(ctx, cont, gitlab.MilestoneFields{
			Title:       m.Title,
			Description: m.Description,
			StartDate:   m.StartDate,
			DueDate:     m.DueDate,
		})
		if err != nil {
			return err
		}
		e.msg("Created milestone: %s", m.Title)
		e.stats.Created++
		remote = created
	}

	r := registry.Ref{ID: remote.ID, IID: remote.IID, Name: remote.Title}
	if cont.Kind == gitlab.ContainerGroup {
		r.GroupID = cont.ID
	} else {
		r.ProjectID = cont.ID
	}
	if err := e.Registry.Bind(registry.KindMilestone, lid(m.ID), r); err != nil {
		return err
	}

	if m.State == document.StateClosed {
		e.links = append(e.links, linkItem{milestone: m, ref: r, cont: cont, state: remote.State})
	}
	return nil
}

func (e *Engine) materializeEpic(ctx context.Context, ref *groupRef, ep *document.Epic) error {
	if !ref.caps.Epics {
		e.capSkip("Group %s does not support epics (tier-gated), skipping %q", ref.fullPath, ep.Title)
		return nil
	}

	existing, err := e.Platform.FindEpic(ctx, ref.id, ep.Title)
	if err != nil {
		return err
	}

	var remote *gitlab.Epic
	if existing != nil {
		if e.Policy == PolicyFail {
			return &ConflictError{Kind: "epic", Name: ep.Title}
		}
		e.msg("Epic already exists: %s", ep.Title)
		e.stats.Reused++
		remote = existing
	} else {
		created, err := e.Platform.CreateEpic(ctx, ref.id, gitlab.EpicFields{
			Title:       ep.Title,
			Description: ep.Description,
		})
		if err != nil {
			if gitlab.IsForbidden(err) {
				e.capSkip("Epic creation denied for group %s (tier-gated), skipping %q", ref.fullPath, ep.Title)
				return nil
			}
			return err
		}
		e.msg("Created epic: %s", ep.Title)
		e.stats.Created++
		remote = created
	}

	r := registry.Ref{ID: remote.ID, IID: remote.IID, GroupID: ref.id, Name: remote.Title}
	if err := e.Registry.Bind(registry.KindEpic, lid(ep.ID), r); err != nil {
		return err
	}

	e.links = append(e.links, linkItem{epic: ep, ref: r, labels: remote.Labels, state: remote.State})
	return nil
}

func (e *Engine) materializeMember(ctx context.Context, cont gitlab.Container, where string, m document.Member) error {
	user, ok := e.Registry.Lookup(registry.KindUser, lid(m.UserID))
	if !ok {
		e.gap("%s: member user %d is not resolved, skipping", where, m.UserID)
		return nil
	}

	err := e.Platform.AddMember(ctx, cont, user.ID, m.AccessLevel())
	if errors.Is(err, gitlab.ErrAlreadyMember) {
		e.msg("@%s is already a member of %s", user.Name, where)
		e.stats.Reused++
		return nil
	}
	if err != nil {
		return err
	}
	e.msg("Added @%s to %s as %s", user.Name, where, m.Role)
	e.stats.Created++
	return nil
}

func (e *Engine) materializeProject(ctx context.Context, ref *groupRef, p *document.Project) error {
	existing, err := e.Platform.FindProject(ctx, ref.id, p.Name)
	if err != nil {
		return err
	}

	var proj *gitlab.Project
	if existing != nil {
		if e.Policy == PolicyFail {
			return &ConflictError{Kind: "project", Name: p.Name}
		}
		e.msg("Project already exists: %s", p.Name)
		e.stats.Reused++
		proj = existing
	} else {
		created, err := e.Platform.CreateProject(ctx, gitlab.ProjectFields{
			Name:        p.Name,
			Path:        document.Slug(p.Name),
			Description: p.Description,
			NamespaceID: ref.id,
		})
		if err != nil {
			cce := &ContainerCreateError{Kind: "project", Name: p.Name, Err: err}
			if e.firstSubtreeErr == nil {
				e.firstSubtreeErr = cce
			}
			e.warn("Skipping contents of project %q: %v", p.Name, err)
			return nil
		}
		// The repository initializes asynchronously; poll until the
		// project settles instead of sleeping a fixed duration.
		settled, err := e.Platform.WaitProjectReady(ctx, created.ID)
		if err != nil {
			return err
		}
		e.msg("Created project: %s", p.Name)
		e.stats.Created++
		proj = settled
	}

	fullPath := ref.fullPath + "/" + document.Slug(p.Name)
	if _, bound := e.Registry.Lookup(registry.KindProject, fullPath); !bound {
		if err := e.Registry.Bind(registry.KindProject, fullPath, registry.Ref{ID: proj.ID, GroupID: ref.id, Name: fullPath}); err != nil {
			return err
		}
	}

	cont := gitlab.ProjectContainer(proj.ID)
	for _, m := range p.Members {
		if err := e.materializeMember(ctx, cont, "project "+fullPath, m); err != nil {
			return err
		}
	}
	for i := range p.Milestones {
		if err := e.materializeMilestone(ctx, cont, ref, &p.Milestones[i]); err != nil {
			return err
		}
	}
	for i := range p.Issues {
		if err := e.materializeIssue(ctx, proj.ID, &p.Issues[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) materializeIssue(ctx context.Context, projectID int, is *document.Issue) error {
	existing, err := e.Platform.FindIssue(ctx, projectID, is.Title)
	if err != nil {
		return err
	}

	var remote *gitlab.Issue
	if existing != nil {
		if e.Policy == PolicyFail {
			return &ConflictError{Kind: "issue", Name: is.Title}
		}
		e.msg("Issue already exists: %s", is.Title)
		e.stats.Reused++
		remote = existing
	} else {
		created, err := e.Platform.CreateIssue(ctx, projectID, gitlab.IssueFields{
			Title:       is.Title,
			Description: is.Description,
		})
		if err != nil {
			return err
		}
		e.msg("Created issue: %s", is.Title)
		e.stats.Created++
		remote = created
	}

	r := registry.Ref{ID: remote.ID, IID: remote.IID, ProjectID: projectID, Name: remote.Title}
	if err := e.Registry.Bind(registry.KindIssue, lid(is.ID), r); err != nil {
		return err
	}

	e.links = append(e.links, linkItem{issue: is, ref: r, labels: remote.Labels, state: remote.State})
	return nil
}

var errParentNotFound = errors.New("parent group does not exist")
