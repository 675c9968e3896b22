package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/platinummonkey/grantor/pkg/api"
	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/orchestrator"
)

// Client calls the grantor REST API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Operation  *grant.AssignmentOperation
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// do issues one JSON request and decodes the response into out when the
// call succeeds.
func (c *Client) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody api.OperationErrorResponse
		if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
			apiErr.Code = errBody.Error
			apiErr.Message = errBody.Message
			apiErr.Operation = errBody.Operation
			if apiErr.Message == "" {
				apiErr.Message = errBody.Error
			}
		} else {
			apiErr.Message = string(data)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// CreateGrant runs the full grant workflow.
func (c *Client) CreateGrant(req grant.AccessGrantRequest) (*grant.AccessGrantResult, error) {
	var result grant.AccessGrantResult
	if err := c.do("POST", "/api/v1/grants", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListGrants lists grant groups, optionally filtered by environment.
func (c *Client) ListGrants(environment string) (*api.GrantListResponse, error) {
	path := "/api/v1/grants"
	if environment != "" {
		path += "?environment=" + url.QueryEscape(environment)
	}
	var list api.GrantListResponse
	if err := c.do("GET", path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ValidateGrant re-validates one grant by its group name.
func (c *Client) ValidateGrant(groupName string) (*grant.GrantValidationReport, error) {
	var report grant.GrantValidationReport
	if err := c.do("GET", "/api/v1/grants/"+url.PathEscape(groupName)+"/validate", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// CreateAssignment runs the lightweight attach flow.
func (c *Client) CreateAssignment(req orchestrator.AssignmentRequest) (*grant.AssignmentOperation, error) {
	var op grant.AssignmentOperation
	if err := c.do("POST", "/api/v1/assignments", req, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// BulkAssign runs a batch of assignments.
func (c *Client) BulkAssign(reqs []orchestrator.AssignmentRequest) (*grant.AssignmentOperation, error) {
	var op grant.AssignmentOperation
	if err := c.do("POST", "/api/v1/assignments/bulk", api.BulkAssignRequest{Assignments: reqs}, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// ListOperations lists operation records.
func (c *Client) ListOperations(status, kind string, limit int) (*api.OperationListResponse, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if kind != "" {
		query.Set("kind", kind)
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := "/api/v1/operations"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var list api.OperationListResponse
	if err := c.do("GET", path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetOperation fetches one operation record.
func (c *Client) GetOperation(id string) (*grant.AssignmentOperation, error) {
	var op grant.AssignmentOperation
	if err := c.do("GET", "/api/v1/operations/"+url.PathEscape(id), nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// RollbackOperation rolls back a completed operation.
func (c *Client) RollbackOperation(id string) (*api.RollbackResponse, error) {
	var resp api.RollbackResponse
	if err := c.do("POST", "/api/v1/operations/"+url.PathEscape(id)+"/rollback", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListTemplates lists the permission templates the server knows.
func (c *Client) ListTemplates() (*api.TemplateListResponse, error) {
	var list api.TemplateListResponse
	if err := c.do("GET", "/api/v1/templates", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}
