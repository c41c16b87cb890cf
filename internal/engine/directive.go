package engine

import "fmt"

// The issue REST API has no field for iterations, so the link is expressed
// as a /iteration quick action embedded in the description body, which
// GitLab's text-command processor executes on save. This adapter is the only
// place that knows about the workaround; if the API ever grows a structured
// iteration field, only this file changes.

// AppendIterationDirective appends the iteration quick action for the named
// iteration to an issue description.
func AppendIterationDirective(description, iterationTitle string) string {
	directive := fmt.Sprintf("/iteration %s", quoteIfNeeded(iterationTitle))
	if description == "" {
		return directive
	}
	return description + "\n\n" + directive
}

// quoteIfNeeded wraps a title containing spaces in double quotes, as the
// quick-action parser requires.
func quoteIfNeeded(title string) string {
	for _, r := range title {
		if r == ' ' {
			return `"` + title + `"`
		}
	}
	return title
}
