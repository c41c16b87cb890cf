package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
users:
  - id: 1
    username: alice
  - id: 2
    username: "@me"
groups:
  - name: Platform
    description: Platform engineering
    labels:
      - id: 1
        name: bug
        color: "#FF0000"
    iterations:
      - id: 1
        title: Sprint 1
        start_date: "2025-01-06"
        due_date: "2025-01-17"
    milestones:
      - id: 1
        title: v1.0
        state: active
    epics:
      - id: 1
        title: Core
        label_ids: [1]
    members:
      - user_id: 1
        role: maintainer
    projects:
      - name: svc
        description: The service
        members:
          - user_id: 2
            role: developer
        issues:
          - id: 1
            title: Fix X
            state: closed
            label_ids: [1]
            parent_epic_id: 1
            milestone_id: 1
            iteration_id: 1
            weight: 3
            assignee_ids: [1]
    subgroups:
      - name: Infra
        projects:
          - name: tooling
`

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "structure.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing document: %v", err)
	}
	return path
}

func TestLoadValidDocument(t *testing.T) {
	doc, err := Load(writeDoc(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if len(doc.Users) != 2 {
		t.Errorf("len(Users) = %d, want 2", len(doc.Users))
	}
	if len(doc.Groups) != 1 {
		t.Fatalf("len(Groups) = %d, want 1", len(doc.Groups))
	}

	g := doc.Groups[0]
	if g.Name != "Platform" {
		t.Errorf("group name = %q, want Platform", g.Name)
	}
	if len(g.Subgroups) != 1 || g.Subgroups[0].Name != "Infra" {
		t.Errorf("subgroups = %+v, want one named Infra", g.Subgroups)
	}

	issue := g.Projects[0].Issues[0]
	if issue.ParentEpicID != 1 || issue.Weight != 3 {
		t.Errorf("issue = %+v, want parent_epic_id 1 and weight 3", issue)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeDoc(t, "groups:\n  - name: x\n    colour: oops\n"))
	if err == nil {
		t.Fatal("Load() succeeded with unknown field, want error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() succeeded for missing file, want error")
	}
}

func TestValidateProblems(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string // substring expected in the error
	}{
		{
			name: "duplicate label id",
			yaml: `
groups:
  - name: g
    labels:
      - {id: 1, name: a}
      - {id: 1, name: b}
`,
			want: "duplicate label id 1",
		},
		{
			name: "bad color",
			yaml: `
groups:
  - name: g
    labels:
      - {id: 1, name: a, color: red}
`,
			want: "is not #RGB or #RRGGBB",
		},
		{
			name: "bad state",
			yaml: `
groups:
  - name: g
    projects:
      - name: p
        issues:
          - {id: 1, title: t, state: done}
`,
			want: `state "done"`,
		},
		{
			name: "unknown role",
			yaml: `
users:
  - {id: 1, username: alice}
groups:
  - name: g
    members:
      - {user_id: 1, role: admin}
`,
			want: `unknown role "admin"`,
		},
		{
			name: "undeclared member user",
			yaml: `
groups:
  - name: g
    members:
      - {user_id: 9, role: guest}
`,
			want: "user_id 9 is not a declared user",
		},
		{
			name: "dangling label ref",
			yaml: `
groups:
  - name: g
    epics:
      - {id: 1, title: e, label_ids: [5]}
`,
			want: "label_id 5 is not a declared label",
		},
		{
			name: "dangling parent epic",
			yaml: `
groups:
  - name: g
    projects:
      - name: p
        issues:
          - {id: 1, title: t, parent_epic_id: 3}
`,
			want: "parent_epic_id 3 is not a declared epic",
		},
		{
			name: "non-positive id",
			yaml: `
groups:
  - name: g
    labels:
      - {id: 0, name: a}
`,
			want: "logical ids must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeDoc(t, tt.yaml))
			if err == nil {
				t.Fatal("Load() succeeded, want validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestForwardEpicReferenceIsValid(t *testing.T) {
	// An epic whose parent appears later in the document passes validation;
	// whether the link resolves is decided at materialization time.
	yaml := `
groups:
  - name: g
    epics:
      - {id: 1, title: child, parent_epic_id: 2}
      - {id: 2, title: parent}
`
	if _, err := Load(writeDoc(t, yaml)); err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Platform", "platform"},
		{"My Team Group", "my-team-group"},
		{"already-slugged", "already-slugged"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAccessLevel(t *testing.T) {
	tests := []struct {
		role string
		want int
	}{
		{"guest", 10},
		{"planner", 15},
		{"reporter", 20},
		{"developer", 30},
		{"Maintainer", 40},
		{"owner", 50},
		{"bogus", 0},
	}
	for _, tt := range tests {
		m := Member{Role: tt.role}
		if got := m.AccessLevel(); got != tt.want {
			t.Errorf("AccessLevel(%q) = %d, want %d", tt.role, got, tt.want)
		}
	}
}
