package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cenkalti/backoff/v4"
)

// NewClient creates a client for a GitLab instance.
func NewClient(token, baseURL string) *Client {
	return &Client{
		Token:   token,
		BaseURL: trimSlash(baseURL),
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns the client configured with a custom HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.HTTPClient = h
	return c
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// buildURL constructs a REST v4 URL for the given path and query params.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + DefaultAPIEndpoint + path
	if len(params) == 0 {
		return u
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return u + "?" + q.Encode()
}

// doRequest executes an authenticated request and returns the response body
// and headers. Non-2xx responses become *APIError.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body []byte) ([]byte, http.Header, error) {
	if c.BaseURL == "" {
		return nil, nil, fmt.Errorf("gitlab URL not configured")
	}
	if c.Token == "" {
		return nil, nil, fmt.Errorf("gitlab token not configured")
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("PRIVATE-TOKEN", c.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, newAPIError(resp.StatusCode, respBody)
	}

	return respBody, resp.Header, nil
}

// get decodes a single GET response into out.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	body, _, err := c.doRequest(ctx, http.MethodGet, c.buildURL(path, params), nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// post sends a JSON payload and decodes the response into out (which may be
// nil when the response body is irrelevant).
func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	return c.send(ctx, http.MethodPost, path, payload, out)
}

// put sends a JSON payload with PUT and decodes the response into out.
func (c *Client) put(ctx context.Context, path string, payload, out interface{}) error {
	return c.send(ctx, http.MethodPut, path, payload, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload, out interface{}) error {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	body, _, err := c.doRequest(ctx, method, c.buildURL(path, nil), data)
	if err != nil {
		return err
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// listAll fetches every page of a list endpoint, following X-Next-Page.
func listAll[T any](ctx context.Context, c *Client, path string, params map[string]string) ([]T, error) {
	var all []T
	page := 1
	for i := 0; i < MaxPages; i++ {
		p := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		for k, v := range params {
			p[k] = v
		}

		body, header, err := c.doRequest(ctx, http.MethodGet, c.buildURL(path, p), nil)
		if err != nil {
			return nil, err
		}

		var batch []T
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("parse list response: %w", err)
		}
		all = append(all, batch...)

		next := header.Get("X-Next-Page")
		if next == "" {
			break
		}
		n, err := strconv.Atoi(next)
		if err != nil || n <= page {
			break
		}
		page = n
	}
	return all, nil
}

// CurrentUser returns the authenticated user. This is both the auth probe
// and the resolution target for the "@me" handle.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.get(ctx, "/user", nil, &u); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return &u, nil
}

// FindUserByUsername looks up a user by exact username. Returns nil when no
// user matches.
func (c *Client) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	users, err := listAll[User](ctx, c, "/users", map[string]string{"username": username})
	if err != nil {
		return nil, fmt.Errorf("find user %q: %w", username, err)
	}
	for i := range users {
		if users[i].Username == username {
			return &users[i], nil
		}
	}
	return nil, nil
}

// GetGroupByPath fetches a group by its full path. Returns nil when the
// group does not exist.
func (c *Client) GetGroupByPath(ctx context.Context, fullPath string) (*Group, error) {
	var g Group
	err := c.get(ctx, "/groups/"+url.PathEscape(fullPath), nil, &g)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group %q: %w", fullPath, err)
	}
	return &g, nil
}

// CreateGroup creates a group. ParentID zero creates a top-level group.
func (c *Client) CreateGroup(ctx context.Context, f GroupFields) (*Group, error) {
	payload := map[string]interface{}{
		"name":        f.Name,
		"path":        f.Path,
		"description": f.Description,
		"visibility":  "private",
	}
	if f.ParentID != 0 {
		payload["parent_id"] = f.ParentID
	}
	var g Group
	if err := c.post(ctx, "/groups", payload, &g); err != nil {
		return nil, fmt.Errorf("create group %q: %w", f.Name, err)
	}
	return &g, nil
}

// FindProject searches a group for a project with the exact name. Returns
// nil when no project matches.
func (c *Client) FindProject(ctx context.Context, groupID int, name string) (*Project, error) {
	path := fmt.Sprintf("/groups/%d/projects", groupID)
	projects, err := listAll[Project](ctx, c, path, map[string]string{"search": name})
	if err != nil {
		return nil, fmt.Errorf("find project %q: %w", name, err)
	}
	for i := range projects {
		if projects[i].Name == name {
			return &projects[i], nil
		}
	}
	return nil, nil
}

// CreateProject creates a project in a group namespace. The repository is
// initialized with a README, which is what makes creation asynchronous on
// the GitLab side; callers should follow up with WaitProjectReady.
func (c *Client) CreateProject(ctx context.Context, f ProjectFields) (*Project, error) {
	payload := map[string]interface{}{
		"name":                   f.Name,
		"path":                   f.Path,
		"namespace_id":           f.NamespaceID,
		"description":            f.Description,
		"visibility":             "private",
		"initialize_with_readme": true,
	}
	var p Project
	if err := c.post(ctx, "/projects", payload, &p); err != nil {
		return nil, fmt.Errorf("create project %q: %w", f.Name, err)
	}
	return &p, nil
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id int) (*Project, error) {
	var p Project
	if err := c.get(ctx, fmt.Sprintf("/projects/%d", id), nil, &p); err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return &p, nil
}

var errProjectNotReady = errors.New("project repository still initializing")

// WaitProjectReady polls a freshly created project until its repository has
// finished initializing, re-fetching with exponential backoff. It returns
// the settled project so callers read complete attributes.
func (c *Client) WaitProjectReady(ctx context.Context, id int) (*Project, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = ReadyPollInterval
	bo.MaxElapsedTime = ReadyPollMaxElapsed

	var p *Project
	err := backoff.Retry(func() error {
		got, err := c.GetProject(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				return err // not visible yet, keep polling
			}
			return backoff.Permanent(err)
		}
		if got.DefaultBranch == "" {
			return errProjectNotReady
		}
		p = got
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		if errors.Is(err, errProjectNotReady) || IsNotFound(err) {
			// The window outlasted the poll budget. Return the last known
			// state rather than failing the whole subtree: issue creation
			// does not depend on the repository itself.
			return c.GetProject(ctx, id)
		}
		return nil, err
	}
	return p, nil
}

// FindLabel searches a container for a label with the exact name. Returns
// nil when no label matches.
func (c *Client) FindLabel(ctx context.Context, cont Container, name string) (*Label, error) {
	path := fmt.Sprintf("/%s/%d/labels", cont.Kind, cont.ID)
	labels, err := listAll[Label](ctx, c, path, map[string]string{"search": name})
	if err != nil {
		return nil, fmt.Errorf("find label %q: %w", name, err)
	}
	for i := range labels {
		if labels[i].Name == name {
			return &labels[i], nil
		}
	}
	return nil, nil
}

// CreateLabel creates a label on a group or project.
func (c *Client) CreateLabel(ctx context.Context, cont Container, f LabelFields) (*Label, error) {
	payload := map[string]interface{}{
		"name":        f.Name,
		"color":       f.Color,
		"description": f.Description,
	}
	var l Label
	path := fmt.Sprintf("/%s/%d/labels", cont.Kind, cont.ID)
	if err := c.post(ctx, path, payload, &l); err != nil {
		return nil, fmt.Errorf("create label %q: %w", f.Name, err)
	}
	return &l, nil
}

// FindMilestone searches a container for a milestone with the exact title.
// Returns nil when no milestone matches.
func (c *Client) FindMilestone(ctx context.Context, cont Container, title string) (*Milestone, error) {
	path := fmt.Sprintf("/%s/%d/milestones", cont.Kind, cont.ID)
	milestones, err := listAll[Milestone](ctx, c, path, map[string]string{"search": title})
	if err != nil {
		return nil, fmt.Errorf("find milestone %q: %w", title, err)
	}
	for i := range milestones {
		if milestones[i].Title == title {
			return &milestones[i], nil
		}
	}
	return nil, nil
}

// CreateMilestone creates a milestone on a group or project.
func (c *Client) CreateMilestone(ctx context.Context, cont Container, f MilestoneFields) (*Milestone, error) {
	payload := map[string]interface{}{
		"title":       f.Title,
		"description": f.Description,
	}
	if f.StartDate != "" {
		payload["start_date"] = f.StartDate
	}
	if f.DueDate != "" {
		payload["due_date"] = f.DueDate
	}
	var m Milestone
	path := fmt.Sprintf("/%s/%d/milestones", cont.Kind, cont.ID)
	if err := c.post(ctx, path, payload, &m); err != nil {
		return nil, fmt.Errorf("create milestone %q: %w", f.Title, err)
	}
	return &m, nil
}

// UpdateMilestone applies updates (e.g. {"state_event": "close"}) to a
// milestone.
func (c *Client) UpdateMilestone(ctx context.Context, cont Container, milestoneID int, updates map[string]interface{}) (*Milestone, error) {
	var m Milestone
	path := fmt.Sprintf("/%s/%d/milestones/%d", cont.Kind, cont.ID, milestoneID)
	if err := c.put(ctx, path, updates, &m); err != nil {
		return nil, fmt.Errorf("update milestone %d: %w", milestoneID, err)
	}
	return &m, nil
}

// FindEpic searches a group for an epic with the exact title. Returns nil
// when no epic matches.
func (c *Client) FindEpic(ctx context.Context, groupID int, title string) (*Epic, error) {
	path := fmt.Sprintf("/groups/%d/epics", groupID)
	epics, err := listAll[Epic](ctx, c, path, map[string]string{"search": title})
	if err != nil {
		return nil, fmt.Errorf("find epic %q: %w", title, err)
	}
	for i := range epics {
		if epics[i].Title == title {
			return &epics[i], nil
		}
	}
	return nil, nil
}

// CreateEpic creates an epic on a group.
func (c *Client) CreateEpic(ctx context.Context, groupID int, f EpicFields) (*Epic, error) {
	payload := map[string]interface{}{
		"title":       f.Title,
		"description": f.Description,
	}
	var e Epic
	if err := c.post(ctx, fmt.Sprintf("/groups/%d/epics", groupID), payload, &e); err != nil {
		return nil, fmt.Errorf("create epic %q: %w", f.Title, err)
	}
	return &e, nil
}

// UpdateEpic applies updates (labels, parent_id, state_event) to an epic,
// addressed by its group-scoped IID.
func (c *Client) UpdateEpic(ctx context.Context, groupID, epicIID int, updates map[string]interface{}) (*Epic, error) {
	var e Epic
	path := fmt.Sprintf("/groups/%d/epics/%d", groupID, epicIID)
	if err := c.put(ctx, path, updates, &e); err != nil {
		return nil, fmt.Errorf("update epic %d: %w", epicIID, err)
	}
	return &e, nil
}

// AssignIssueToEpic attaches an issue (by global id) to an epic.
func (c *Client) AssignIssueToEpic(ctx context.Context, groupID, epicIID, issueID int) error {
	path := fmt.Sprintf("/groups/%d/epics/%d/issues/%d", groupID, epicIID, issueID)
	if err := c.post(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("assign issue %d to epic %d: %w", issueID, epicIID, err)
	}
	return nil
}

// FindIssue searches a project for an issue with the exact title. Returns
// nil when no issue matches.
func (c *Client) FindIssue(ctx context.Context, projectID int, title string) (*Issue, error) {
	path := fmt.Sprintf("/projects/%d/issues", projectID)
	issues, err := listAll[Issue](ctx, c, path, map[string]string{"search": title})
	if err != nil {
		return nil, fmt.Errorf("find issue %q: %w", title, err)
	}
	for i := range issues {
		if issues[i].Title == title {
			return &issues[i], nil
		}
	}
	return nil, nil
}

// CreateIssue creates an issue on a project.
func (c *Client) CreateIssue(ctx context.Context, projectID int, f IssueFields) (*Issue, error) {
	payload := map[string]interface{}{
		"title":       f.Title,
		"description": f.Description,
	}
	var is Issue
	if err := c.post(ctx, fmt.Sprintf("/projects/%d/issues", projectID), payload, &is); err != nil {
		return nil, fmt.Errorf("create issue %q: %w", f.Title, err)
	}
	return &is, nil
}

// UpdateIssue applies updates (labels, milestone_id, weight, assignee_ids,
// state_event, description) to an issue, addressed by its project-scoped
// IID.
func (c *Client) UpdateIssue(ctx context.Context, projectID, issueIID int, updates map[string]interface{}) (*Issue, error) {
	var is Issue
	path := fmt.Sprintf("/projects/%d/issues/%d", projectID, issueIID)
	if err := c.put(ctx, path, updates, &is); err != nil {
		return nil, fmt.Errorf("update issue %d: %w", issueIID, err)
	}
	return &is, nil
}

// FindIteration searches a group for an iteration with the exact title.
// Listing works over REST even though creation does not. Returns nil when
// no iteration matches.
func (c *Client) FindIteration(ctx context.Context, groupID int, title string) (*Iteration, error) {
	path := fmt.Sprintf("/groups/%d/iterations", groupID)
	iterations, err := listAll[Iteration](ctx, c, path, map[string]string{"search": title})
	if err != nil {
		return nil, fmt.Errorf("find iteration %q: %w", title, err)
	}
	for i := range iterations {
		if iterations[i].Title == title {
			return &iterations[i], nil
		}
	}
	return nil, nil
}

// AddMember adds a user to a group or project with the given access level.
// Returns ErrAlreadyMember when the membership already exists.
func (c *Client) AddMember(ctx context.Context, cont Container, userID, accessLevel int) error {
	payload := map[string]interface{}{
		"user_id":      userID,
		"access_level": accessLevel,
	}
	path := fmt.Sprintf("/%s/%d/members", cont.Kind, cont.ID)
	err := c.post(ctx, path, payload, nil)
	if IsConflict(err) {
		return ErrAlreadyMember
	}
	if err != nil {
		return fmt.Errorf("add member %d: %w", userID, err)
	}
	return nil
}

// ProbeCapabilities determines which tier-gated kinds a group supports by
// issuing the cheap list call for each and classifying 403/404 as a
// capability gap. Any other failure is genuine and is returned as an error,
// never swallowed.
func (c *Client) ProbeCapabilities(ctx context.Context, groupID int) (Capabilities, error) {
	caps := Capabilities{}

	probe := func(path string) (bool, error) {
		_, _, err := c.doRequest(ctx, http.MethodGet,
			c.buildURL(path, map[string]string{"per_page": "1"}), nil)
		if err == nil {
			return true, nil
		}
		if IsForbidden(err) || IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	var err error
	if caps.Epics, err = probe(fmt.Sprintf("/groups/%d/epics", groupID)); err != nil {
		return caps, fmt.Errorf("probe epic capability: %w", err)
	}
	if caps.Iterations, err = probe(fmt.Sprintf("/groups/%d/iterations", groupID)); err != nil {
		return caps, fmt.Errorf("probe iteration capability: %w", err)
	}
	return caps, nil
}
