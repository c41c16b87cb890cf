// Package document defines the declarative project-structure document and
// its YAML loader.
//
// A document describes groups, projects, issues, epics, labels, milestones,
// iterations, users and memberships, cross-referenced by author-assigned
// logical ids. Parsing is strict: unknown fields are rejected so typos fail
// before any remote call is made.
package document

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entity states accepted by the document schema.
const (
	StateOpened = "opened"
	StateClosed = "closed"
	StateActive = "active" // milestones and iterations
)

// Document is the root of the declarative structure.
type Document struct {
	Users  []User  `yaml:"users"`
	Groups []Group `yaml:"groups"`
}

// User declares a platform user referenced by memberships and assignees.
// The handle "@me" resolves to the authenticated actor at run time.
type User struct {
	ID       int    `yaml:"id"`
	Username string `yaml:"username"`
}

// Group declares a group and everything nested inside it. Subgroups recurse.
type Group struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Labels      []Label     `yaml:"labels"`
	Iterations  []Iteration `yaml:"iterations"`
	Milestones  []Milestone `yaml:"milestones"`
	Epics       []Epic      `yaml:"epics"`
	Members     []Member    `yaml:"members"`
	Projects    []Project   `yaml:"projects"`
	Subgroups   []Group     `yaml:"subgroups"`
}

// Label declares a group- or project-level label. Labels are identified
// remotely by name, not id.
type Label struct {
	ID          int    `yaml:"id"`
	Name        string `yaml:"name"`
	Color       string `yaml:"color"`
	Description string `yaml:"description"`
}

// Milestone declares a group- or project-level milestone.
type Milestone struct {
	ID          int    `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	StartDate   string `yaml:"start_date"`
	DueDate     string `yaml:"due_date"`
	State       string `yaml:"state"`
}

// Iteration declares a group-level iteration. Iterations are tier-gated on
// the remote platform.
type Iteration struct {
	ID          int    `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	StartDate   string `yaml:"start_date"`
	DueDate     string `yaml:"due_date"`
	State       string `yaml:"state"`
}

// Epic declares a group-level epic. ParentEpicID may reference an epic
// declared earlier in the document; zero means no parent.
type Epic struct {
	ID           int    `yaml:"id"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	State        string `yaml:"state"`
	LabelIDs     []int  `yaml:"label_ids"`
	ParentEpicID int    `yaml:"parent_epic_id"`
}

// Project declares a project inside a group.
type Project struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Members     []Member    `yaml:"members"`
	Milestones  []Milestone `yaml:"milestones"`
	Issues      []Issue     `yaml:"issues"`
}

// Issue declares an issue inside a project. All reference fields hold
// logical ids; zero means unset.
type Issue struct {
	ID           int    `yaml:"id"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	State        string `yaml:"state"`
	LabelIDs     []int  `yaml:"label_ids"`
	ParentEpicID int    `yaml:"parent_epic_id"`
	MilestoneID  int    `yaml:"milestone_id"`
	IterationID  int    `yaml:"iteration_id"`
	Weight       int    `yaml:"weight"`
	AssigneeIDs  []int  `yaml:"assignee_ids"`
}

// Member declares a group or project membership.
type Member struct {
	UserID int    `yaml:"user_id"`
	Role   string `yaml:"role"`
}

// AccessLevels maps membership roles to the platform's ordinal access
// levels.
var AccessLevels = map[string]int{
	"guest":      10,
	"planner":    15,
	"reporter":   20,
	"developer":  30,
	"maintainer": 40,
	"owner":      50,
}

// AccessLevel returns the numeric access level for a role, or 0 if the role
// is unknown.
func (m Member) AccessLevel() int {
	return AccessLevels[strings.ToLower(m.Role)]
}

// Slug derives the URL path component from a group or project name:
// lowercased, spaces replaced with hyphens.
func Slug(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "-"))
}

// Load reads and strictly decodes a document from a YAML file, then
// validates it. Any failure is a document error: the run must abort before
// touching the remote platform.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("parse %s: %v", path, err)}}
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}
