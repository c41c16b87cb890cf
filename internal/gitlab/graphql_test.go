package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateIteration(t *testing.T) {
	var gotPath string
	var gotReq graphQLRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{
			"data": {
				"iterationCreate": {
					"iteration": {
						"id": "gid://gitlab/Iteration/456",
						"iid": "3",
						"title": "Sprint 1"
					},
					"errors": []
				}
			}
		}`)
	}))
	defer srv.Close()

	c := NewClient("tok", srv.URL)
	it, err := c.CreateIteration(context.Background(), "org/platform", IterationFields{
		Title:     "Sprint 1",
		StartDate: "2025-01-01",
		DueDate:   "2025-01-14",
	})
	if err != nil {
		t.Fatalf("CreateIteration: %v", err)
	}

	if gotPath != GraphQLEndpoint {
		t.Errorf("request path = %q, want %q", gotPath, GraphQLEndpoint)
	}
	if gotReq.Variables["groupPath"] != "org/platform" {
		t.Errorf("groupPath = %v", gotReq.Variables["groupPath"])
	}
	if gotReq.Variables["startDate"] != "2025-01-01" {
		t.Errorf("startDate = %v", gotReq.Variables["startDate"])
	}

	if it.ID != 456 || it.IID != 3 || it.Title != "Sprint 1" {
		t.Errorf("iteration = %+v", it)
	}
}

func TestCreateIterationMutationErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"data": {
				"iterationCreate": {
					"iteration": null,
					"errors": ["Start date cannot be later than due date"]
				}
			}
		}`)
	}))
	defer srv.Close()

	c := NewClient("tok", srv.URL)
	if _, err := c.CreateIteration(context.Background(), "g", IterationFields{Title: "x"}); err == nil {
		t.Fatal("expected mutation-level errors to surface")
	}
}

func TestCreateIterationTierGated(t *testing.T) {
	// GitLab reports missing tier-gated mutations as top-level GraphQL
	// errors, not HTTP 403. The client maps them so IsForbidden works.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"errors": [
				{"message": "Field 'iterationCreate' doesn't exist on type 'Mutation'"}
			]
		}`)
	}))
	defer srv.Close()

	c := NewClient("tok", srv.URL)
	_, err := c.CreateIteration(context.Background(), "g", IterationFields{Title: "x"})
	if !IsForbidden(err) {
		t.Fatalf("err = %v, want a capability-gap classification", err)
	}
}

func TestParseGlobalID(t *testing.T) {
	tests := []struct {
		gid  string
		want int
	}{
		{"gid://gitlab/Iteration/123", 123},
		{"gid://gitlab/Epic/9", 9},
		{"gid://gitlab/Iteration/", 0},
		{"123", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParseGlobalID(tt.gid); got != tt.want {
			t.Errorf("ParseGlobalID(%q) = %d, want %d", tt.gid, got, tt.want)
		}
	}
}
