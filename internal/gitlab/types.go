// Package gitlab provides the client and data types for the GitLab REST and
// GraphQL APIs.
//
// The injection engine only needs a thin capability-checked surface per
// entity kind: find by name within a container, create, and update. This
// package implements that surface over REST v4, with one exception —
// iteration creation, which REST does not expose and which goes through the
// GraphQL endpoint instead (see graphql.go).
package gitlab

import (
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitLab REST API v4 endpoint suffix.
	DefaultAPIEndpoint = "/api/v4"

	// GraphQLEndpoint is the GitLab GraphQL endpoint suffix.
	GraphQLEndpoint = "/api/graphql"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxPageSize is the page size requested from list endpoints.
	MaxPageSize = 100

	// MaxPages bounds pagination loops against malformed X-Next-Page
	// headers.
	MaxPages = 1000
)

// Project readiness polling. GitLab initializes a project's repository
// asynchronously after creation; attribute reads inside that window can be
// incomplete, so creation is followed by a poll instead of a fixed sleep.
const (
	// ReadyPollInterval is the initial delay between readiness probes.
	ReadyPollInterval = 250 * time.Millisecond

	// ReadyPollMaxElapsed caps the total time spent waiting for a project
	// to finish initializing.
	ReadyPollMaxElapsed = 10 * time.Second
)

// Client provides access to one GitLab instance.
type Client struct {
	Token      string       // personal access token
	BaseURL    string       // instance URL (e.g. "https://gitlab.example.com")
	HTTPClient *http.Client // optional custom HTTP client
}

// User represents a GitLab user.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	State    string `json:"state,omitempty"`
	WebURL   string `json:"web_url,omitempty"`
}

// Group represents a GitLab group or subgroup.
type Group struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	FullPath    string `json:"full_path"`
	Description string `json:"description,omitempty"`
	ParentID    int    `json:"parent_id,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
	WebURL      string `json:"web_url,omitempty"`
}

// Project represents a GitLab project.
type Project struct {
	ID                int        `json:"id"`
	Name              string     `json:"name"`
	Path              string     `json:"path"`
	PathWithNamespace string     `json:"path_with_namespace"`
	Description       string     `json:"description,omitempty"`
	DefaultBranch     string     `json:"default_branch,omitempty"`
	EmptyRepo         bool       `json:"empty_repo,omitempty"`
	Namespace         *Namespace `json:"namespace,omitempty"`
	WebURL            string     `json:"web_url,omitempty"`
}

// Namespace represents a GitLab namespace (group or user).
type Namespace struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Kind     string `json:"kind"` // "user" or "group"
	FullPath string `json:"full_path"`
}

// Label represents a GitLab label. Label operations are keyed by name in the
// remote API, not by id.
type Label struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// Milestone represents a group or project milestone.
type Milestone struct {
	ID          int    `json:"id"`
	IID         int    `json:"iid"`
	ProjectID   int    `json:"project_id,omitempty"`
	GroupID     int    `json:"group_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	State       string `json:"state"` // "active", "closed"
	StartDate   string `json:"start_date,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	WebURL      string `json:"web_url,omitempty"`
}

// Iteration represents a group iteration. Tier-gated.
type Iteration struct {
	ID          int    `json:"id"`
	IID         int    `json:"iid"`
	GroupID     int    `json:"group_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	State       int    `json:"state,omitempty"` // REST reports iteration state numerically
	StartDate   string `json:"start_date,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	WebURL      string `json:"web_url,omitempty"`
}

// Epic represents a group epic. Tier-gated.
type Epic struct {
	ID          int      `json:"id"`
	IID         int      `json:"iid"`
	GroupID     int      `json:"group_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	State       string   `json:"state"` // "opened", "closed"
	Labels      []string `json:"labels,omitempty"`
	ParentID    int      `json:"parent_id,omitempty"`
	WebURL      string   `json:"web_url,omitempty"`
}

// Issue represents a project issue.
type Issue struct {
	ID          int        `json:"id"`  // global issue id
	IID         int        `json:"iid"` // project-scoped id
	ProjectID   int        `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	State       string     `json:"state"` // "opened", "closed"
	Labels      []string   `json:"labels,omitempty"`
	Milestone   *Milestone `json:"milestone,omitempty"`
	Assignees   []User     `json:"assignees,omitempty"`
	Weight      int        `json:"weight,omitempty"`
	Epic        *Epic      `json:"epic,omitempty"`
	WebURL      string     `json:"web_url"`
}

// Member represents a group or project membership.
type Member struct {
	ID          int    `json:"id"` // user id
	Username    string `json:"username"`
	AccessLevel int    `json:"access_level"`
}

// GroupFields holds the attributes for group creation.
type GroupFields struct {
	Name        string
	Path        string
	Description string
	ParentID    int // 0 for top-level groups
}

// ProjectFields holds the attributes for project creation.
type ProjectFields struct {
	Name        string
	Path        string
	Description string
	NamespaceID int
}

// LabelFields holds the attributes for label creation.
type LabelFields struct {
	Name        string
	Color       string
	Description string
}

// MilestoneFields holds the attributes for milestone creation.
type MilestoneFields struct {
	Title       string
	Description string
	StartDate   string
	DueDate     string
}

// IterationFields holds the attributes for iteration creation.
type IterationFields struct {
	Title       string
	Description string
	StartDate   string
	DueDate     string
}

// EpicFields holds the attributes for epic creation.
type EpicFields struct {
	Title       string
	Description string
}

// IssueFields holds the attributes for issue creation.
type IssueFields struct {
	Title       string
	Description string
}

// Capabilities describes which tier-gated entity kinds a group supports.
// Probed once when the group ref is constructed and queried through a plain
// field check afterwards; the engine never re-probes at use sites.
type Capabilities struct {
	Epics      bool
	Iterations bool
}

// ContainerKind distinguishes the two container types that can hold labels,
// milestones and members.
type ContainerKind string

const (
	ContainerGroup   ContainerKind = "groups"
	ContainerProject ContainerKind = "projects"
)

// Container identifies a remote group or project for operations that apply
// to both.
type Container struct {
	Kind ContainerKind
	ID   int
}

// GroupContainer returns a Container for a group id.
func GroupContainer(id int) Container { return Container{Kind: ContainerGroup, ID: id} }

// ProjectContainer returns a Container for a project id.
func ProjectContainer(id int) Container { return Container{Kind: ContainerProject, ID: id} }
