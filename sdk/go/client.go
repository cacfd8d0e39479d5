package grantflowsdk

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
)

// Client is a minimal Grantflow HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Proposal represents the API proposal model (partial).
type Proposal struct {
	ID               string   `json:"id"`
	PeriodID         string   `json:"period_id"`
	CreatorID        string   `json:"creator_id"`
	Title            string   `json:"title"`
	Status           string   `json:"status"`
	ScreeningVerdict string   `json:"screening_verdict,omitempty"`
	RevisionCount    int      `json:"revision_count"`
	RequestedFunding int64    `json:"requested_funding"`
	ApprovedFunding  *int64   `json:"approved_funding,omitempty"`
	AverageScore     *float64 `json:"average_score,omitempty"`
}

// Assignment represents a reviewer assignment.
type Assignment struct {
	ID         string `json:"id"`
	ProposalID string `json:"proposal_id"`
	ReviewerID string `json:"reviewer_id"`
	Round      int    `json:"round"`
	Status     string `json:"status"`
	Deadline   string `json:"deadline"`
}

// Review represents one scored review.
type Review struct {
	ID             string `json:"id"`
	AssignmentID   string `json:"assignment_id"`
	Round          int    `json:"round"`
	Score          int    `json:"score"`
	Recommendation string `json:"recommendation"`
	Remarks        string `json:"remarks,omitempty"`
}

// Disbursement represents one funding termin.
type Disbursement struct {
	ID         string `json:"id"`
	ProposalID string `json:"proposal_id"`
	Termin     int    `json:"termin"`
	Share      int    `json:"share"`
	Nominal    int64  `json:"nominal"`
	Status     string `json:"status"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProposalID string         `json:"proposal_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload_json,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedProposals wraps proposal listings with cursors.
type PaginatedProposals struct {
	Items      []Proposal `json:"items"`
	NextCursor string     `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateProposal creates a draft proposal.
func (c *Client) CreateProposal(ctx context.Context, periodID, title string, requestedFunding int64) (Proposal, error) {
	body := map[string]any{
		"period_id":         periodID,
		"title":             title,
		"requested_funding": requestedFunding,
	}
	var resp Proposal
	err := c.do(ctx, http.MethodPost, "proposals", body, &resp)
	return resp, err
}

// GetProposal fetches a proposal by id.
func (c *Client) GetProposal(ctx context.Context, id string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodGet, "proposals/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ProposalsPage returns a paginated proposal listing.
func (c *Client) ProposalsPage(ctx context.Context, status string, limit int, cursor string) (PaginatedProposals, error) {
	endpoint := "proposals" + queryString(map[string]string{
		"status": status,
		"limit":  intParam(limit),
		"cursor": cursor,
	})
	var resp PaginatedProposals
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SubmitProposal moves a draft into screening.
func (c *Client) SubmitProposal(ctx context.Context, id string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, "proposals/"+url.PathEscape(id)+"/submit", nil, &resp)
	return resp, err
}

// Assignments lists the caller's review assignments.
func (c *Client) Assignments(ctx context.Context) ([]Assignment, error) {
	var resp []Assignment
	err := c.do(ctx, http.MethodGet, "assignments", nil, &resp)
	return resp, err
}

// SubmitReview records a scored review for an assignment.
func (c *Client) SubmitReview(ctx context.Context, assignmentID string, score int, recommendation, remarks string) (Review, error) {
	body := map[string]any{
		"score":          score,
		"recommendation": recommendation,
		"remarks":        remarks,
	}
	var resp Review
	err := c.do(ctx, http.MethodPost, "assignments/"+url.PathEscape(assignmentID)+"/review", body, &resp)
	return resp, err
}

// Disbursements lists the termin schedule for a proposal.
func (c *Client) Disbursements(ctx context.Context, proposalID string) ([]Disbursement, error) {
	var resp []Disbursement
	err := c.do(ctx, http.MethodGet, "proposals/"+url.PathEscape(proposalID)+"/disbursements", nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing (admin only).
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "events" + queryString(map[string]string{
		"limit":  intParam(limit),
		"cursor": cursor,
	})
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func queryString(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

func intParam(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}
