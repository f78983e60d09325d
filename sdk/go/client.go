package homebidsdk

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

// Client is a minimal HomeBid HTTP API client.
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

// User represents an account.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// Token is the register/login response.
type Token struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Project represents the API project model (partial).
type Project struct {
	ID            string   `json:"id"`
	HomeownerID   string   `json:"homeowner_id"`
	Title         string   `json:"title"`
	Category      string   `json:"category"`
	Status        string   `json:"status"`
	Budget        *float64 `json:"budget,omitempty"`
	AcceptedBidID *string  `json:"accepted_bid_id,omitempty"`
}

// Bid represents a contractor offer.
type Bid struct {
	ID                string  `json:"id"`
	ProjectID         string  `json:"project_id"`
	ContractorID      string  `json:"contractor_id"`
	Price             float64 `json:"price"`
	EstimatedDuration int     `json:"estimated_duration"`
	Status            string  `json:"status"`
}

// Milestone represents a unit of project work.
type Milestone struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	Order      int     `json:"order"`
	AssignedTo *string `json:"assigned_to,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Register creates an account and stores the returned bearer token on the client.
func (c *Client) Register(ctx context.Context, email, password, firstName, lastName, role string) (Token, error) {
	body := map[string]any{
		"email":      email,
		"password":   password,
		"first_name": firstName,
		"last_name":  lastName,
		"role":       role,
	}
	var resp Token
	if err := c.do(ctx, http.MethodPost, "auth/register", body, &resp); err != nil {
		return Token{}, err
	}
	c.BearerToken = resp.Token
	return resp, nil
}

// Login authenticates and stores the returned bearer token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Token, error) {
	body := map[string]any{"email": email, "password": password}
	var resp Token
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return Token{}, err
	}
	c.BearerToken = resp.Token
	return resp, nil
}

// CreateProject posts a new project. Open controls whether it is published
// immediately or stays a draft.
func (c *Client) CreateProject(ctx context.Context, title, category string, open bool) (Project, error) {
	body := map[string]any{
		"title":    title,
		"category": category,
		"open":     open,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListProjects returns projects visible to the caller.
func (c *Client) ListProjects(ctx context.Context, status string) ([]Project, error) {
	endpoint := "projects"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Project
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetProjectStatus moves a project through its workflow.
func (c *Client) SetProjectStatus(ctx context.Context, id, status string) (Project, error) {
	var resp Project
	endpoint := fmt.Sprintf("projects/%s/status", url.PathEscape(id))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// SubmitBid places a bid on an open project.
func (c *Client) SubmitBid(ctx context.Context, projectID string, price float64, estimatedDuration int) (Bid, error) {
	body := map[string]any{
		"price":              price,
		"estimated_duration": estimatedDuration,
	}
	var resp Bid
	endpoint := fmt.Sprintf("projects/%s/bids", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ListBids returns the bids on a project.
func (c *Client) ListBids(ctx context.Context, projectID string) ([]Bid, error) {
	var resp []Bid
	endpoint := fmt.Sprintf("projects/%s/bids", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AcceptBid accepts a bid, rejecting all other pending bids on the project.
func (c *Client) AcceptBid(ctx context.Context, bidID string) (Bid, error) {
	return c.SetBidStatus(ctx, bidID, "accepted")
}

// SetBidStatus changes a bid's status (accepted, rejected or withdrawn).
func (c *Client) SetBidStatus(ctx context.Context, bidID, status string) (Bid, error) {
	var resp Bid
	endpoint := fmt.Sprintf("bids/%s/status", url.PathEscape(bidID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// CreateMilestone adds a milestone to a project.
func (c *Client) CreateMilestone(ctx context.Context, projectID, title string) (Milestone, error) {
	var resp Milestone
	endpoint := fmt.Sprintf("projects/%s/milestones", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"title": title}, &resp)
	return resp, err
}

// ListMilestones returns a project's milestones in order.
func (c *Client) ListMilestones(ctx context.Context, projectID string) ([]Milestone, error) {
	var resp []Milestone
	endpoint := fmt.Sprintf("projects/%s/milestones", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetMilestoneStatus changes a milestone's status.
func (c *Client) SetMilestoneStatus(ctx context.Context, id, status string) (Milestone, error) {
	var resp Milestone
	endpoint := fmt.Sprintf("milestones/%s/status", url.PathEscape(id))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// Events returns recent events for a project.
func (c *Client) Events(ctx context.Context, projectID string, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("projects/%s/events", url.PathEscape(projectID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
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
