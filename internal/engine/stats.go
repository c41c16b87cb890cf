package engine

import "fmt"

// Stats counts the decisions made during one run.
type Stats struct {
	Created int // entities created remotely
	Reused  int // entities adopted by name lookup
	Skipped int // entities skipped on a capability gap
	Linked  int // relationship updates applied
	Gaps    int // reference gaps (links skipped with a warning)
}

// Summary renders a one-line human-readable summary.
func (s *Stats) Summary() string {
	return fmt.Sprintf("created %d, reused %d, skipped %d, linked %d, reference gaps %d",
		s.Created, s.Reused, s.Skipped, s.Linked, s.Gaps)
}
