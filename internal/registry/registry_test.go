package registry

import (
	"testing"
)

func TestBindAndLookup(t *testing.T) {
	r := New()

	if err := r.Bind(KindLabel, "1", Ref{Name: "bug"}); err != nil {
		t.Fatalf("Bind() returned error: %v", err)
	}

	ref, ok := r.Lookup(KindLabel, "1")
	if !ok {
		t.Fatal("Lookup() = absent, want present")
	}
	if ref.Name != "bug" {
		t.Errorf("ref.Name = %q, want %q", ref.Name, "bug")
	}
}

func TestLookupAbsent(t *testing.T) {
	r := New()

	if _, ok := r.Lookup(KindEpic, "42"); ok {
		t.Error("Lookup() = present for unbound id, want absent")
	}
}

func TestKindsAreSeparateNamespaces(t *testing.T) {
	r := New()

	if err := r.Bind(KindEpic, "1", Ref{ID: 100}); err != nil {
		t.Fatalf("Bind(epic) returned error: %v", err)
	}
	if err := r.Bind(KindIssue, "1", Ref{ID: 200}); err != nil {
		t.Fatalf("Bind(issue) returned error: %v", err)
	}

	epic, _ := r.Lookup(KindEpic, "1")
	issue, _ := r.Lookup(KindIssue, "1")
	if epic.ID != 100 || issue.ID != 200 {
		t.Errorf("epic.ID = %d, issue.ID = %d, want 100 and 200", epic.ID, issue.ID)
	}
}

func TestBindIsWriteOnce(t *testing.T) {
	r := New()

	if err := r.Bind(KindIssue, "7", Ref{ID: 1}); err != nil {
		t.Fatalf("first Bind() returned error: %v", err)
	}
	if err := r.Bind(KindIssue, "7", Ref{ID: 2}); err == nil {
		t.Fatal("second Bind() for same id succeeded, want error")
	}

	// The original binding must survive the rejected rebind.
	ref, ok := r.Lookup(KindIssue, "7")
	if !ok || ref.ID != 1 {
		t.Errorf("Lookup() = %+v, %v; want ID 1, present", ref, ok)
	}
}

func TestLenAndIDs(t *testing.T) {
	r := New()

	for _, id := range []string{"3", "1", "2"} {
		if err := r.Bind(KindMilestone, id, Ref{}); err != nil {
			t.Fatalf("Bind(%s) returned error: %v", id, err)
		}
	}

	if got := r.Len(KindMilestone); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
	if got := r.Len(KindUser); got != 0 {
		t.Errorf("Len(user) = %d, want 0", got)
	}

	ids := r.IDs(KindMilestone)
	want := []string{"1", "2", "3"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("IDs() = %v, want %v", ids, want)
		}
	}
}
