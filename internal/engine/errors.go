package engine

import "fmt"

// ContainerCreateError reports that a group or project could not be created.
// It is fatal for the container's subtree: no descendant is visited.
type ContainerCreateError struct {
	Kind string // "group" or "project"
	Name string
	Err  error
}

func (e *ContainerCreateError) Error() string {
	return fmt.Sprintf("creating %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *ContainerCreateError) Unwrap() error { return e.Err }

// ConflictError reports a name collision under PolicyFail: the declared
// entity already exists remotely and the policy forbids adopting it.
type ConflictError struct {
	Kind string
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists (policy is %q)", e.Kind, e.Name, PolicyFail)
}
