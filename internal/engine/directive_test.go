package engine

import "testing"

func TestAppendIterationDirective(t *testing.T) {
	tests := []struct {
		name        string
		description string
		title       string
		want        string
	}{
		{
			name:        "empty description",
			description: "",
			title:       "Sprint1",
			want:        "/iteration Sprint1",
		},
		{
			name:        "existing description",
			description: "some body",
			title:       "Sprint1",
			want:        "some body\n\n/iteration Sprint1",
		},
		{
			name:        "title with spaces is quoted",
			description: "body",
			title:       "Sprint 1",
			want:        "body\n\n/iteration \"Sprint 1\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AppendIterationDirective(tt.description, tt.title)
			if got != tt.want {
				t.Errorf("AppendIterationDirective(%q, %q) = %q, want %q",
					tt.description, tt.title, got, tt.want)
			}
		})
	}
}
