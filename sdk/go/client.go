package rasappsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal RasApp HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://127.0.0.1:8080/api.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Person represents the API person model (partial).
type Person struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	PersonalNumber string         `json:"personal_number"`
	Role           string         `json:"role"`
	FrameworkID    string         `json:"framework_id"`
	AssignedItems  []AssignedItem `json:"assigned_items,omitempty"`
}

// Deployment represents an operation with its participants.
type Deployment struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	FrameworkID    string   `json:"framework_id"`
	ParticipantIDs []string `json:"participant_ids"`
}

// Item is an inventory row with its derived counts.
type Item struct {
	ID           string   `json:"id"`
	DeploymentID string   `json:"deployment_id"`
	Name         string   `json:"name"`
	TracksSerial bool     `json:"tracks_serial"`
	Quantity     int      `json:"quantity"`
	Serials      []string `json:"serials"`
	Assigned     int      `json:"assigned"`
	Available    int      `json:"available"`
}

// StockLine is one line of an add-stock request.
type StockLine struct {
	Name             string   `json:"name"`
	TracksSerial     bool     `json:"tracks_serial"`
	Serials          []string `json:"serials,omitempty"`
	NoSerialQuantity int      `json:"no_serial_quantity,omitempty"`
}

// ItemResult reports an item after a stock change.
type ItemResult struct {
	Item    Item `json:"item"`
	Created bool `json:"created,omitempty"`
	Deleted bool `json:"deleted,omitempty"`
}

// AssignedItem is a custody record.
type AssignedItem struct {
	ID              string  `json:"id"`
	PersonID        string  `json:"person_id"`
	Name            string  `json:"name"`
	Quantity        int     `json:"quantity"`
	Serial          *string `json:"serial,omitempty"`
	Provider        string  `json:"provider"`
	InventoryItemID *string `json:"inventory_item_id,omitempty"`
	DeploymentID    *string `json:"deployment_id,omitempty"`
	AssignedAt      string  `json:"assigned_at"`
}

// Event represents an audit log entry.
type Event struct {
	ID           int64          `json:"id"`
	TS           string         `json:"ts"`
	Type         string         `json:"type"`
	DeploymentID *string        `json:"deployment_id,omitempty"`
	EntityKind   string         `json:"entity_kind"`
	EntityID     *string        `json:"entity_id,omitempty"`
	ActorID      string         `json:"actor_id"`
	Payload      map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// LoginResult is returned by Login and SetPassword. Token is empty when the
// person must first set or enter a password.
type LoginResult struct {
	Token              string     `json:"token,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	Person             *Person    `json:"person,omitempty"`
	NeedsPassword      bool       `json:"needs_password,omitempty"`
	NeedsPasswordEntry bool       `json:"needs_password_entry,omitempty"`
}

// APIError wraps non-2xx responses. Code carries the domain error kind,
// e.g. insufficient_stock.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Login exchanges credentials for a token and remembers it on success.
func (c *Client) Login(ctx context.Context, personalNumber, password string) (LoginResult, error) {
	var resp LoginResult
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{
		"personal_number": personalNumber,
		"password":        password,
	}, &resp)
	if err == nil && resp.Token != "" {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// SetPassword sets the first password of a person and logs in.
func (c *Client) SetPassword(ctx context.Context, personalNumber, password string) (LoginResult, error) {
	var resp LoginResult
	err := c.do(ctx, http.MethodPost, "auth/set-password", map[string]any{
		"personal_number": personalNumber,
		"password":        password,
	}, &resp)
	if err == nil && resp.Token != "" {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Me returns the logged-in person with their assigned items.
func (c *Client) Me(ctx context.Context) (Person, error) {
	var resp Person
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// Deployments lists deployments visible to the caller.
func (c *Client) Deployments(ctx context.Context) ([]Deployment, error) {
	var resp []Deployment
	err := c.do(ctx, http.MethodGet, "deployments", nil, &resp)
	return resp, err
}

// CreateDeployment creates a deployment in a framework.
func (c *Client) CreateDeployment(ctx context.Context, frameworkID, name string) (Deployment, error) {
	var resp Deployment
	err := c.do(ctx, http.MethodPost, "deployments", map[string]any{
		"framework_id": frameworkID,
		"name":         name,
	}, &resp)
	return resp, err
}

// Inventory lists a deployment's items.
func (c *Client) Inventory(ctx context.Context, deploymentID string) ([]Item, error) {
	var resp []Item
	err := c.do(ctx, http.MethodGet, deploymentPath(deploymentID, "inventory"), nil, &resp)
	return resp, err
}

// AddStock adds stock lines to a deployment.
func (c *Client) AddStock(ctx context.Context, deploymentID string, lines ...StockLine) ([]ItemResult, error) {
	var resp []ItemResult
	err := c.do(ctx, http.MethodPost, deploymentPath(deploymentID, "inventory"), map[string]any{"lines": lines}, &resp)
	return resp, err
}

// Assign hands inventory to a person. serial is empty for quantity items.
func (c *Client) Assign(ctx context.Context, personID, itemID string, quantity int, serial string) (AssignedItem, error) {
	body := map[string]any{"inventory_item_id": itemID}
	if serial != "" {
		body["serial"] = serial
	} else {
		body["quantity"] = quantity
	}
	var resp AssignedItem
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("people/%s/assigned-items", url.PathEscape(personID)), body, &resp)
	return resp, err
}

// Unassign returns a custody record.
func (c *Client) Unassign(ctx context.Context, personID, assignedID string) error {
	endpoint := fmt.Sprintf("people/%s/assigned-items/%s", url.PathEscape(personID), url.PathEscape(assignedID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
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
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func deploymentPath(id, p string) string {
	return fmt.Sprintf("deployments/%s/%s", url.PathEscape(id), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
