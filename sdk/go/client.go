package taskdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskdesk HTTP API client.
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

// User represents the API user model.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Approved bool   `json:"approved"`
}

// Task represents the API task model (partial).
type Task struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// Assignment represents a single user's handout of a task.
type Assignment struct {
	ID             string `json:"id"`
	TaskID         string `json:"task_id"`
	UserID         string `json:"user_id"`
	IsPrimary      bool   `json:"is_primary"`
	AssignmentType string `json:"assignment_type"`
	Status         string `json:"status"`
	Deadline       string `json:"deadline"`
	Overdue        bool   `json:"overdue"`
}

// Completion represents a work report for an assignment.
type Completion struct {
	ID                 string `json:"id"`
	AssignmentID       string `json:"assignment_id"`
	UserID             string `json:"user_id"`
	ProgressPercentage int    `json:"progress_percentage"`
	IsFullyCompleted   bool   `json:"is_fully_completed"`
	WorkDescription    string `json:"work_description"`
	Challenges         string `json:"challenges,omitempty"`
	NextSteps          string `json:"next_steps,omitempty"`
	Status             string `json:"status"`
}

// Proposal represents a pitched project.
type Proposal struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Title        string `json:"title"`
	Objective    string `json:"objective"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Budget       int64  `json:"budget"`
	Status       string `json:"status"`
	LinkedPlanID string `json:"linked_plan_id,omitempty"`
}

// Notification is an in-app message for the authenticated user.
type Notification struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Read       bool   `json:"read"`
	EntityKind string `json:"entity_kind,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// FileRef points at an uploaded attachment.
type FileRef struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
	Category string `json:"category,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Page wraps list responses with a continuation cursor.
type Page[T any] struct {
	Items []T `json:"items"`
	Next  *struct {
		CreatedAt string `json:"created_at"`
		ID        string `json:"id"`
	} `json:"next,omitempty"`
}

// Login exchanges credentials for a bearer token and stores it on
// the client.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var resp struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// Register creates a pending account.
func (c *Client) Register(ctx context.Context, name, email, password string) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodPost, "v1/auth/register", map[string]any{
		"name":     name,
		"email":    email,
		"password": password,
	}, &resp)
	return resp, err
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "v1/me", nil, &resp)
	return resp, err
}

// ListAssignments returns the caller's view of assignments.
func (c *Client) ListAssignments(ctx context.Context, userID, status string, limit int) ([]Assignment, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "v1/assignments"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp Page[Assignment]
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// SetAssignmentStatus accepts, declines, or starts an assignment.
func (c *Client) SetAssignmentStatus(ctx context.Context, assignmentID, status string) (Assignment, error) {
	var resp Assignment
	endpoint := fmt.Sprintf("v1/assignments/%s/status", url.PathEscape(assignmentID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// CompletionDraft is the autosaved report payload.
type CompletionDraft struct {
	AssignmentID       string `json:"assignment_id"`
	SubtaskID          string `json:"subtask_id,omitempty"`
	ProgressPercentage int    `json:"progress_percentage"`
	IsFullyCompleted   bool   `json:"is_fully_completed"`
	WorkDescription    string `json:"work_description"`
	Challenges         string `json:"challenges,omitempty"`
	NextSteps          string `json:"next_steps,omitempty"`
}

// SaveCompletionDraft creates or updates the active draft.
func (c *Client) SaveCompletionDraft(ctx context.Context, draft CompletionDraft) (Completion, error) {
	var resp Completion
	err := c.do(ctx, http.MethodPut, "v1/completions/draft", draft, &resp)
	return resp, err
}

// SubmitCompletion moves a draft into review.
func (c *Client) SubmitCompletion(ctx context.Context, completionID string) (Completion, error) {
	var resp Completion
	endpoint := fmt.Sprintf("v1/completions/%s/submit", url.PathEscape(completionID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// UploadCompletionFile attaches evidence to a draft.
func (c *Client) UploadCompletionFile(ctx context.Context, completionID, fileName, mimeType string, r io.Reader) (FileRef, error) {
	endpoint := fmt.Sprintf("v1/completions/%s/files", url.PathEscape(completionID))
	return c.upload(ctx, endpoint, fileName, mimeType, r)
}

// SaveProposalDraft creates or updates a proposal draft. Pass an empty
// id to create.
func (c *Client) SaveProposalDraft(ctx context.Context, p Proposal, departmentIDs []string) (Proposal, error) {
	body := map[string]any{
		"id":             p.ID,
		"title":          p.Title,
		"objective":      p.Objective,
		"start_date":     p.StartDate,
		"end_date":       p.EndDate,
		"budget":         p.Budget,
		"department_ids": departmentIDs,
	}
	var resp Proposal
	err := c.do(ctx, http.MethodPut, "v1/proposals/draft", body, &resp)
	return resp, err
}

// SubmitProposal moves a proposal into review.
func (c *Client) SubmitProposal(ctx context.Context, proposalID string) (Proposal, error) {
	var resp Proposal
	endpoint := fmt.Sprintf("v1/proposals/%s/submit", url.PathEscape(proposalID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Notifications returns the caller's notifications.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool, limit int) ([]Notification, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "v1/notifications"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Notification
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("v1/notifications/%s/read", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

func (c *Client) upload(ctx context.Context, endpoint, fileName, mimeType string, r io.Reader) (FileRef, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return FileRef{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return FileRef{}, err
	}
	if err := mw.Close(); err != nil {
		return FileRef{}, err
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/"+strings.TrimLeft(endpoint, "/"), &buf)
	if err != nil {
		return FileRef{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setAuth(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return FileRef{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return FileRef{}, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	var out FileRef
	return out, json.NewDecoder(resp.Body).Decode(&out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
