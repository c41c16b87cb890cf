// Package engine materializes a declarative structure document into a
// GitLab instance.
//
// A run is two passes. The first pass walks the document with an explicit
// worklist and materializes every entity — reusing remote entities found by
// exact name, creating the rest — while recording logical-id → remote-ref
// bindings in the registry. The second pass applies deferred relationships
// (labels, parent epics, milestones, iterations, assignees, state
// transitions) by resolving logical ids through the registry. Running the
// relationship work as a separate pass means a parent epic declared later in
// the document still resolves; only references to entities that were never
// materialized at all are reported as gaps and skipped.
package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lmazure/gitlab-injector/internal/document"
	"github.com/lmazure/gitlab-injector/internal/gitlab"
	"github.com/lmazure/gitlab-injector/internal/registry"
)

// Platform is the capability-checked client surface the engine drives. It is
// implemented by *gitlab.Client and by the test fake.
type Platform interface {
	CurrentUser(ctx context.Context) (*gitlab.User, error)
	FindUserByUsername(ctx context.Context, username string) (*gitlab.User, error)

	GetGroupByPath(ctx context.Context, fullPath string) (*gitlab.Group, error)
	CreateGroup(ctx context.Context, f gitlab.GroupFields) (*gitlab.Group, error)
	ProbeCapabilities(ctx context.Context, groupID int) (gitlab.Capabilities, error)

	FindProject(ctx context.Context, groupID int, name string) (*gitlab.Project, error)
	CreateProject(ctx context.Context, f gitlab.ProjectFields) (*gitlab.Project, error)
	WaitProjectReady(ctx context.Context, id int) (*gitlab.Project, error)

	FindLabel(ctx context.Context, cont gitlab.Container, name string) (*gitlab.Label, error)
	CreateLabel(ctx context.Context, cont gitlab.Container, f gitlab.LabelFields) (*gitlab.Label, error)

	FindMilestone(ctx context.Context, cont gitlab.Container, title string) (*gitlab.Milestone, error)
	CreateMilestone(ctx context.Context, cont gitlab.Container, f gitlab.MilestoneFields) (*gitlab.Milestone, error)
	UpdateMilestone(ctx context.Context, cont gitlab.Container, milestoneID int, updates map[string]interface{}) (*gitlab.Milestone, error)

	FindIteration(ctx context.Context, groupID int, title string) (*gitlab.Iteration, error)
	CreateIteration(ctx context.Context, groupFullPath string, f gitlab.IterationFields) (*gitlab.Iteration, error)

	FindEpic(ctx context.Context, groupID int, title string) (*gitlab.Epic, error)
	CreateEpic(ctx context.Context, groupID int, f gitlab.EpicFields) (*gitlab.Epic, error)
	UpdateEpic(ctx context.Context, groupID, epicIID int, updates map[string]interface{}) (*gitlab.Epic, error)
	AssignIssueToEpic(ctx context.Context, groupID, epicIID, issueID int) error

	FindIssue(ctx context.Context, projectID int, title string) (*gitlab.Issue, error)
	CreateIssue(ctx context.Context, projectID int, f gitlab.IssueFields) (*gitlab.Issue, error)
	UpdateIssue(ctx context.Context, projectID, issueIID int, updates map[string]interface{}) (*gitlab.Issue, error)

	AddMember(ctx context.Context, cont gitlab.Container, userID, accessLevel int) error
}

// ExistingPolicy decides what happens when a declared entity already exists
// remotely under the same name.
type ExistingPolicy string

const (
	// PolicyReuse adopts the existing remote entity and continues. This is
	// the default: it is what makes re-running a document idempotent.
	PolicyReuse ExistingPolicy = "reuse"

	// PolicyFail treats a name collision as a conflict and aborts the run
	// without touching the existing entity.
	PolicyFail ExistingPolicy = "fail"
)

// Engine drives one injection run. Construct with New, configure the public
// fields, then call Run once.
type Engine struct {
	Platform Platform
	Registry *registry.Registry
	Policy   ExistingPolicy

	// ParentPath optionally roots top-level groups under an existing group.
	ParentPath string

	// DryRun walks the document and reports what would be created without
	// issuing any remote call.
	DryRun bool

	// Callbacks for trace output (optional).
	OnMessage func(msg string)
	OnWarning func(msg string)

	stats Stats
	me    *gitlab.User
	links []linkItem

	// firstSubtreeErr records the first container-create failure. Its
	// subtree is abandoned, remaining siblings still run, and the error is
	// returned at the end so the process exits non-zero.
	firstSubtreeErr error
}

// New creates an engine with the default reuse policy.
func New(p Platform, reg *registry.Registry) *Engine {
	return &Engine{
		Platform: p,
		Registry: reg,
		Policy:   PolicyReuse,
	}
}

// Run materializes the document. The returned stats are valid even when an
// error is returned; whatever remote state was created stays created.
func (e *Engine) Run(ctx context.Context, doc *document.Document) (*Stats, error) {
	if e.DryRun {
		e.planRun(doc)
		return &e.stats, nil
	}

	me, err := e.Platform.CurrentUser(ctx)
	if err != nil {
		return &e.stats, err
	}
	e.me = me
	e.msg("Authenticated as %s", me.Username)

	if err := e.resolveUsers(ctx, doc.Users); err != nil {
		return &e.stats, err
	}

	if err := e.materialize(ctx, doc); err != nil {
		return &e.stats, err
	}

	e.msg("Resolving relationships between entities...")
	if err := e.resolveLinks(ctx); err != nil {
		return &e.stats, err
	}

	if e.firstSubtreeErr != nil {
		return &e.stats, e.firstSubtreeErr
	}
	return &e.stats, nil
}

// resolveUsers binds every declared user to a remote actor id. The handle
// "@me" resolves to the authenticated user. A user that cannot be found is a
// soft gap: memberships and assignments referencing it will be skipped.
func (e *Engine) resolveUsers(ctx context.Context, users []document.User) error {
	for _, u := range users {
		var actor *gitlab.User
		if u.Username == "@me" {
			actor = e.me
		} else {
			found, err := e.Platform.FindUserByUsername(ctx, u.Username)
			if err != nil {
				return err
			}
			actor = found
		}
		if actor == nil {
			e.gap("user %d: no user named %q on the instance", u.ID, u.Username)
			continue
		}
		if err := e.Registry.Bind(registry.KindUser, lid(u.ID), registry.Ref{ID: actor.ID, Name: actor.Username}); err != nil {
			return err
		}
		e.msg("Resolved user %d to @%s", u.ID, actor.Username)
	}
	return nil
}

// lid renders a numeric logical id as a registry key.
func lid(id int) string { return strconv.Itoa(id) }

func (e *Engine) msg(format string, args ...interface{}) {
	if e.OnMessage != nil {
		e.OnMessage(fmt.Sprintf(format, args...))
	}
}

func (e *Engine) warn(format string, args ...interface{}) {
	if e.OnWarning != nil {
		e.OnWarning(fmt.Sprintf(format, args...))
	}
}

// gap records a reference gap: a soft, logged skip.
func (e *Engine) gap(format string, args ...interface{}) {
	e.stats.Gaps++
	e.warn(format, args...)
}

// capSkip records a capability gap: a tier-gated kind that the container
// does not support.
func (e *Engine) capSkip(format string, args ...interface{}) {
	e.stats.Skipped++
	e.warn(format, args...)
}
