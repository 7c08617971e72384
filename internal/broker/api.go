package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// API paths, relative to the base URL.
const (
	PathMainOverview   = "/monitoring/getMainOverviewData"
	PathGetAllUsers    = "/usermgmt/getAllUsers"
	PathAddUser        = "/usermgmt/addUser"
	PathRemoveUser     = "/usermgmt/removeUser"
	PathCreateSchema   = "/schemas/createNewSchema"
	PathValidateSchema = "/schemas/validateSchema"
	PathSendSupport    = "/usageReport/sendSupport"
)

// Overview is the broker's main monitoring payload.
type Overview struct {
	TotalStations    int               `json:"total_stations"`
	TotalMessages    int64             `json:"total_messages"`
	SystemComponents []SystemComponent `json:"system_components"`
	K8sEnv           bool              `json:"k8s_env"`

	// BrokersThroughput is kept raw so that one malformed entry does not
	// fail the whole payload.
	BrokersThroughput json.RawMessage `json:"brokers_throughput"`
}

// SystemComponent is a deployed part of the broker (broker, metadata
// store, REST gateway) and the containers that run it.
type SystemComponent struct {
	Name        string      `json:"name"`
	Status      string      `json:"status,omitempty"`
	Ports       []int       `json:"ports,omitempty"`
	Hosts       []string    `json:"hosts,omitempty"`
	DesiredPods int         `json:"desired_pods"`
	ActualPods  int         `json:"actual_pods"`
	Components  []Container `json:"components"`
}

// Container is a single running instance of a system component.
type Container struct {
	Name    string   `json:"name"`
	Healthy bool     `json:"healthy"`
	CPU     Resource `json:"cpu"`
	Memory  Resource `json:"memory"`
	Storage Resource `json:"storage"`
}

// Resource is a usage reading.
type Resource struct {
	Total      float64 `json:"total"`
	Current    float64 `json:"current"`
	Percentage float64 `json:"percentage"`
}

// User is a broker user account.
type User struct {
	ID              int       `json:"id"`
	Username        string    `json:"username"`
	UserType        string    `json:"user_type"`
	CreatedAt       time.Time `json:"created_at"`
	AlreadyLoggedIn bool      `json:"already_logged_in"`
	AvatarID        int       `json:"avatar_id"`
}

// CreateUserRequest creates a management or application user.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	UserType string `json:"user_type"`
	AvatarID int    `json:"avatar_id,omitempty"`
}

// CreateSchemaRequest registers a new schema.
type CreateSchemaRequest struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	SchemaContent string   `json:"schema_content"`
	Tags          []string `json:"tags,omitempty"`
}

// ValidateSchemaRequest asks the broker to compile a schema.
type ValidateSchemaRequest struct {
	SchemaType    string `json:"schema_type"`
	SchemaContent string `json:"schema_content"`
}

// ValidateSchemaResult is the broker's verdict.
type ValidateSchemaResult struct {
	IsValid bool `json:"is_valid"`
}

// SupportRequest is a ticket for the support team.
type SupportRequest struct {
	Severity string `json:"severity"`
	Details  string `json:"details"`
}

// MainOverview fetches the monitoring overview.
func (c *Client) MainOverview(ctx context.Context) (*Overview, error) {
	var result Overview
	if err := c.doRequest(ctx, http.MethodGet, PathMainOverview, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListUsers returns every user, in the broker's order.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var result []User
	if err := c.doRequest(ctx, http.MethodGet, PathGetAllUsers, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateUser creates a user and returns it as stored.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	var result User
	if err := c.doRequest(ctx, http.MethodPost, PathAddUser, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RemoveUser deletes a user by name.
func (c *Client) RemoveUser(ctx context.Context, username string) error {
	body := map[string]string{"username": username}
	return c.doRequest(ctx, http.MethodDelete, PathRemoveUser, body, nil)
}

// CreateSchema registers a schema.
func (c *Client) CreateSchema(ctx context.Context, req CreateSchemaRequest) (json.RawMessage, error) {
	var result json.RawMessage
	if err := c.doRequest(ctx, http.MethodPost, PathCreateSchema, req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ValidateSchema asks the broker whether a schema compiles.
func (c *Client) ValidateSchema(ctx context.Context, req ValidateSchemaRequest) (*ValidateSchemaResult, error) {
	var result ValidateSchemaResult
	if err := c.doRequest(ctx, http.MethodPost, PathValidateSchema, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendSupport files a support ticket.
func (c *Client) SendSupport(ctx context.Context, req SupportRequest) error {
	return c.doRequest(ctx, http.MethodPost, PathSendSupport, req, nil)
}
