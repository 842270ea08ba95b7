package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// IssuesPath is the issue collection endpoint.
const IssuesPath = "/issues/"

func issuePath(id int64, suffix ...string) string {
	p := IssuesPath + strconv.FormatInt(id, 10) + "/"
	for _, s := range suffix {
		p += s + "/"
	}
	return p
}

// ListIssues returns the issues matching filter. Paginated and plain list responses
// are both accepted.
func (c *Client) ListIssues(ctx context.Context, filter IssueFilter) ([]Issue, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.Category != "" {
		query.Set("category", string(filter.Category))
	}
	if filter.Search != "" {
		query.Set("search", filter.Search)
	}
	if filter.Mine {
		query.Set("mine", "true")
	}
	if filter.Page > 0 {
		query.Set("page", strconv.Itoa(filter.Page))
	}

	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, IssuesPath, query, nil, &raw); err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var issues []Issue
		if err := json.Unmarshal(raw, &issues); err != nil {
			return nil, fmt.Errorf("decoding issues: %w", err)
		}
		return issues, nil
	}

	var page issuePage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decoding issues: %w", err)
	}
	return page.Results, nil
}

// GetIssue returns one issue.
func (c *Client) GetIssue(ctx context.Context, id int64) (*Issue, error) {
	var issue Issue
	if err := c.Do(ctx, http.MethodGet, issuePath(id), nil, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// CreateIssue files a new issue. Title, description and category are required.
func (c *Client) CreateIssue(ctx context.Context, in IssueInput) (*Issue, error) {
	if in.Title == nil || in.Description == nil || in.Category == nil {
		return nil, fmt.Errorf("invalid issue: title, description and category are required")
	}
	if err := c.validate.StructCtx(ctx, in); err != nil {
		return nil, fmt.Errorf("invalid issue: %w", err)
	}

	var issue Issue
	if err := c.Do(ctx, http.MethodPost, IssuesPath, nil, in, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// UpdateIssue applies a partial update.
func (c *Client) UpdateIssue(ctx context.Context, id int64, in IssueInput) (*Issue, error) {
	if err := c.validate.StructCtx(ctx, in); err != nil {
		return nil, fmt.Errorf("invalid issue: %w", err)
	}

	var issue Issue
	if err := c.Do(ctx, http.MethodPatch, issuePath(id), nil, in, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// DeleteIssue removes an issue.
func (c *Client) DeleteIssue(ctx context.Context, id int64) error {
	return c.Do(ctx, http.MethodDelete, issuePath(id), nil, nil, nil)
}

// UpvoteIssue records the current user's support for an issue.
func (c *Client) UpvoteIssue(ctx context.Context, id int64) (*Issue, error) {
	var issue Issue
	if err := c.Do(ctx, http.MethodPost, issuePath(id, "upvote"), nil, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}
