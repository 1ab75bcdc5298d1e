package jira

import "time"

// RemoteIssue is the short-lived read of a Jira issue used during
// reconciliation. Jira owns the data; nothing here is persisted.
type RemoteIssue struct {
	Key         string
	Summary     string
	Status      string
	Description string
	Updated     time.Time
}

// issueFields is the wire shape of the fields block in create and
// update payloads (REST API v2).
type issueFields struct {
	Project     *projectRef `json:"project,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	Description string      `json:"description,omitempty"`
	IssueType   *typeRef    `json:"issuetype,omitempty"`
	Labels      []string    `json:"labels,omitempty"`
}

type projectRef struct {
	Key string `json:"key"`
}

type typeRef struct {
	Name string `json:"name"`
}

type createRequest struct {
	Fields issueFields `json:"fields"`
}

type createResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Updated     string `json:"updated"`
		Status      struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
}

type transitionsResponse struct {
	Transitions []struct {
		ID string `json:"id"`
		To struct {
			Name string `json:"name"`
		} `json:"to"`
	} `json:"transitions"`
}

type transitionRequest struct {
	Transition struct {
		ID string `json:"id"`
	} `json:"transition"`
}

// updatedTimeLayout is Jira's timestamp format for the updated field.
const updatedTimeLayout = "2006-01-02T15:04:05.000-0700"
