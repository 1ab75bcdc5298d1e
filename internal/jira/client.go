// Package jira wraps the Jira REST v2 endpoints the sync engine needs:
// issue lookup, epic creation, field updates, and workflow transitions.
// Transient failures are retried with exponential backoff; auth and
// validation failures surface immediately.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/epicsync/epicsync/internal/config"
	"github.com/epicsync/epicsync/internal/notes"
)

// createLabel tags issues created by this tool so they are easy to
// find in Jira.
const createLabel = "epicsync"

// Client talks to one Jira site with one credential.
type Client struct {
	baseURL    string
	user       string
	token      string
	projectKey string
	maxRetries uint64
	httpc      *http.Client
	logger     zerolog.Logger
}

// NewClient builds a client from the resolved configuration.
func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.JiraBaseURL, "/"),
		user:       cfg.JiraUser,
		token:      cfg.JiraToken,
		projectKey: cfg.JiraProjectKey,
		maxRetries: uint64(cfg.MaxRetries),
		httpc:      &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logger.With().Str("component", "jira").Logger(),
	}
}

// Myself verifies the credential against /myself. Used as a startup
// preflight so a bad token fails the process before watching starts.
func (c *Client) Myself(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/rest/api/2/myself", nil)
	return err
}

// FindIssue fetches the tracked fields of one issue. Returns
// ErrNotFound when the key does not exist (or is no longer visible).
func (c *Client) FindIssue(ctx context.Context, key string) (*RemoteIssue, error) {
	path := fmt.Sprintf("/rest/api/2/issue/%s?fields=%s",
		url.PathEscape(key), url.QueryEscape("summary,description,status,updated"))

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp issueResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding issue %s: %w", key, err)
	}

	issue := &RemoteIssue{
		Key:         resp.Key,
		Summary:     resp.Fields.Summary,
		Status:      resp.Fields.Status.Name,
		Description: resp.Fields.Description,
	}
	if resp.Fields.Updated != "" {
		if ts, err := time.Parse(updatedTimeLayout, resp.Fields.Updated); err == nil {
			issue.Updated = ts
		}
	}
	return issue, nil
}

// CreateEpic creates a new Epic issue for the record and returns its
// key. Callers are responsible for checking the sync mapping first so
// a retried pass never creates a duplicate.
func (c *Client) CreateEpic(ctx context.Context, record notes.EpicRecord) (string, error) {
	payload, err := json.Marshal(createRequest{Fields: issueFields{
		Project:     &projectRef{Key: c.projectKey},
		Summary:     record.Title,
		Description: record.RenderedDescription(),
		IssueType:   &typeRef{Name: "Epic"},
		Labels:      []string{createLabel},
	}})
	if err != nil {
		return "", fmt.Errorf("encoding create payload: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/rest/api/2/issue", payload)
	if err != nil {
		return "", err
	}

	var resp createResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}
	if resp.Key == "" {
		return "", fmt.Errorf("create response missing issue key")
	}

	c.logger.Info().Str("key", resp.Key).Str("title", record.Title).Msg("created epic")
	return resp.Key, nil
}

// UpdateIssue applies a minimal field update. Only the non-empty
// members of fields go on the wire, so remote-owned fields are never
// clobbered.
func (c *Client) UpdateIssue(ctx context.Context, key string, summary, description *string) error {
	fields := make(map[string]any, 2)
	if summary != nil {
		fields["summary"] = *summary
	}
	if description != nil {
		fields["description"] = *description
	}
	if len(fields) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return fmt.Errorf("encoding update payload: %w", err)
	}

	path := "/rest/api/2/issue/" + url.PathEscape(key)
	if _, err := c.do(ctx, http.MethodPut, path, payload); err != nil {
		return err
	}

	c.logger.Info().Str("key", key).Msg("updated issue fields")
	return nil
}

// Transitions returns the workflow transitions currently available on
// the issue, keyed by lower-cased target status name.
func (c *Client) Transitions(ctx context.Context, key string) (map[string]string, error) {
	path := fmt.Sprintf("/rest/api/2/issue/%s/transitions", url.PathEscape(key))

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp transitionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding transitions: %w", err)
	}

	transitions := make(map[string]string, len(resp.Transitions))
	for _, t := range resp.Transitions {
		transitions[strings.ToLower(t.To.Name)] = t.ID
	}
	return transitions, nil
}

// TransitionIssue moves the issue into the named workflow status.
// Status changes in Jira go through the transitions endpoint, not a
// plain field update.
func (c *Client) TransitionIssue(ctx context.Context, key, statusName string) error {
	transitions, err := c.Transitions(ctx, key)
	if err != nil {
		return err
	}

	id, ok := transitions[strings.ToLower(statusName)]
	if !ok {
		return fmt.Errorf("no transition to status %q on %s", statusName, key)
	}

	var req transitionRequest
	req.Transition.ID = id
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding transition payload: %w", err)
	}

	path := fmt.Sprintf("/rest/api/2/issue/%s/transitions", url.PathEscape(key))
	if _, err := c.do(ctx, http.MethodPost, path, payload); err != nil {
		return err
	}

	c.logger.Info().Str("key", key).Str("status", statusName).Msg("transitioned issue")
	return nil
}

// do issues one authenticated request with retry. The request body is
// rebuilt per attempt from payload. Transient failures (network
// errors, 429, 5xx) back off exponentially up to the configured
// attempt bound; everything else is permanent.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body []byte

	attempt := 0
	op := func() error {
		attempt++

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("building request: %w", err))
		}
		req.SetBasicAuth(c.user, c.token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).
				Str("path", path).Msg("request failed, will retry")
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			body = data
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNotFound)
		default:
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: truncate(string(data), 500)}
			if !apiErr.Transient() {
				return backoff.Permanent(apiErr)
			}
			c.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).
				Str("path", path).Msg("transient failure, will retry")
			return apiErr
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
