package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-token", srv.URL)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestRequestCarriesToken(t *testing.T) {
	var gotToken, gotAccept string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("PRIVATE-TOKEN")
		gotAccept = r.Header.Get("Accept")
		writeJSON(t, w, User{ID: 7, Username: "alice"})
	})

	u, err := c.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if gotToken != "test-token" {
		t.Errorf("PRIVATE-TOKEN = %q, want %q", gotToken, "test-token")
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if u.ID != 7 || u.Username != "alice" {
		t.Errorf("user = %+v", u)
	}
}

func TestClientRequiresConfiguration(t *testing.T) {
	c := NewClient("", "https://gitlab.example.com")
	if _, err := c.CurrentUser(context.Background()); err == nil {
		t.Error("expected an error with an empty token")
	}

	c = NewClient("tok", "")
	if _, err := c.CurrentUser(context.Background()); err == nil {
		t.Error("expected an error with an empty URL")
	}
}

func TestGetGroupByPath(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		var gotPath string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.EscapedPath()
			writeJSON(t, w, Group{ID: 12, FullPath: "org/platform"})
		})

		g, err := c.GetGroupByPath(context.Background(), "org/platform")
		if err != nil {
			t.Fatalf("GetGroupByPath: %v", err)
		}
		if g == nil || g.ID != 12 {
			t.Fatalf("group = %+v", g)
		}
		// The full path rides in a single path segment.
		if want := "/api/v4/groups/org%2Fplatform"; gotPath != want {
			t.Errorf("request path = %q, want %q", gotPath, want)
		}
	})

	t.Run("absent", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "404 Group Not Found"}`)
		})

		g, err := c.GetGroupByPath(context.Background(), "nope")
		if err != nil {
			t.Fatalf("absence must not be an error, got %v", err)
		}
		if g != nil {
			t.Errorf("group = %+v, want nil", g)
		}
	})
}

func TestListPaginationFollowsNextPage(t *testing.T) {
	var pages []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		switch page {
		case "1":
			w.Header().Set("X-Next-Page", "2")
			writeJSON(t, w, []User{{ID: 1, Username: "alicebob"}})
		default:
			writeJSON(t, w, []User{{ID: 2, Username: "alice"}})
		}
	})

	u, err := c.FindUserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindUserByUsername: %v", err)
	}
	if u == nil || u.ID != 2 {
		t.Fatalf("user = %+v, want id 2", u)
	}
	if len(pages) != 2 || pages[0] != "1" || pages[1] != "2" {
		t.Errorf("pages requested = %v", pages)
	}
}

func TestFindProjectRequiresExactName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search"); got != "api" {
			t.Errorf("search param = %q", got)
		}
		// GitLab search is fuzzy; the client must filter to the exact name.
		writeJSON(t, w, []Project{
			{ID: 1, Name: "api-gateway"},
			{ID: 2, Name: "api"},
		})
	})

	p, err := c.FindProject(context.Background(), 5, "api")
	if err != nil {
		t.Fatalf("FindProject: %v", err)
	}
	if p == nil || p.ID != 2 {
		t.Fatalf("project = %+v, want id 2", p)
	}
}

func TestFindLabelAbsent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []Label{{ID: 1, Name: "bugfix"}})
	})

	l, err := c.FindLabel(context.Background(), GroupContainer(3), "bug")
	if err != nil {
		t.Fatalf("FindLabel: %v", err)
	}
	if l != nil {
		t.Errorf("label = %+v, want nil for a fuzzy-only match", l)
	}
}

func TestAddMemberConflictIsReuse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"message": "Member already exists"}`)
	})

	err := c.AddMember(context.Background(), GroupContainer(3), 42, 30)
	if !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("err = %v, want ErrAlreadyMember", err)
	}
}

func TestAPIErrorClassification(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "403 Forbidden"}`)
	})

	_, err := c.CreateEpic(context.Background(), 3, EpicFields{Title: "x"})
	if !IsForbidden(err) {
		t.Fatalf("err = %v, want a 403 APIError", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("error does not unwrap to *APIError")
	}
	if apiErr.Message != "403 Forbidden" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestProbeCapabilities(t *testing.T) {
	t.Run("epics gated", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("per_page") != "1" {
				t.Errorf("probe must request a single item, got %q", r.URL.RawQuery)
			}
			switch r.URL.Path {
			case "/api/v4/groups/3/epics":
				w.WriteHeader(http.StatusForbidden)
			case "/api/v4/groups/3/iterations":
				writeJSON(t, w, []Iteration{})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		})

		caps, err := c.ProbeCapabilities(context.Background(), 3)
		if err != nil {
			t.Fatalf("ProbeCapabilities: %v", err)
		}
		if caps.Epics || !caps.Iterations {
			t.Errorf("caps = %+v", caps)
		}
	})

	t.Run("server error is fatal", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		if _, err := c.ProbeCapabilities(context.Background(), 3); err == nil {
			t.Fatal("a 500 during the probe must be returned, not classified as a gap")
		}
	})
}

func TestWaitProjectReady(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		p := Project{ID: 9, Name: "svc"}
		if calls >= 3 {
			p.DefaultBranch = "main"
		}
		writeJSON(t, w, p)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := c.WaitProjectReady(ctx, 9)
	if err != nil {
		t.Fatalf("WaitProjectReady: %v", err)
	}
	if p.DefaultBranch != "main" {
		t.Errorf("project not settled: %+v", p)
	}
	if calls < 3 {
		t.Errorf("expected at least 3 polls, got %d", calls)
	}
}

func TestNewAPIErrorMessageShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string message", `{"message": "boom"}`, "boom"},
		{"array message", `{"message": ["first", "second"]}`, "first"},
		{"error field", `{"error": "invalid_token"}`, "invalid_token"},
		{"raw body", `not json at all`, "not json at all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newAPIError(422, []byte(tt.body))
			if e.Message != tt.want {
				t.Errorf("message = %q, want %q", e.Message, tt.want)
			}
			if e.Status != 422 {
				t.Errorf("status = %d", e.Status)
			}
		})
	}
}
