package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"prodflow/pkg/api"

	"github.com/spf13/cobra"
)

// Client handles API calls to the prodflow controller.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new client with the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
	Kind       string
	Allowed    *int
	Fields     map[string]string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	if e.Allowed != nil {
		msg += fmt.Sprintf(" (allowed: %d)", *e.Allowed)
	}
	return msg
}

func (c *Client) do(method, path string, body, out interface{}, headers ...string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var payload api.ErrorResponse
		if json.Unmarshal(respBody, &payload) == nil && payload.Error != "" {
			apiErr.Message, apiErr.Kind, apiErr.Allowed, apiErr.Fields = payload.Error, payload.Kind, payload.Allowed, payload.Fields
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// ListRooms sends GET /rooms.
func (c *Client) ListRooms() ([]api.RoomResponse, error) {
	var out []api.RoomResponse
	return out, c.do(http.MethodGet, "/rooms", nil, &out)
}

// CreateRoom sends POST /rooms.
func (c *Client) CreateRoom(req api.CreateRoomRequest) (*api.RoomResponse, error) {
	var out api.RoomResponse
	if err := c.do(http.MethodPost, "/rooms", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListOperators sends GET /operators.
func (c *Client) ListOperators() ([]api.OperatorResponse, error) {
	var out []api.OperatorResponse
	return out, c.do(http.MethodGet, "/operators", nil, &out)
}

// CreateOperator sends POST /operators.
func (c *Client) CreateOperator(req api.CreateOperatorRequest) (*api.OperatorResponse, error) {
	var out api.OperatorResponse
	if err := c.do(http.MethodPost, "/operators", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListItems sends GET /items.
func (c *Client) ListItems(limit int) ([]api.ItemResponse, error) {
	var out []api.ItemResponse
	return out, c.do(http.MethodGet, fmt.Sprintf("/items?limit=%d", limit), nil, &out)
}

// ImportItems sends POST /items/import.
func (c *Client) ImportItems(req api.ImportItemsRequest) (*api.ImportItemsResponse, error) {
	var out api.ImportItemsResponse
	if err := c.do(http.MethodPost, "/items/import", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBatch sends POST /batches.
func (c *Client) CreateBatch(req api.CreateBatchRequest) (*api.BatchResponse, error) {
	var out api.BatchResponse
	if err := c.do(http.MethodPost, "/batches", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBatch sends GET /batches/{id}.
func (c *Client) GetBatch(id string) (*api.BatchResponse, error) {
	var out api.BatchResponse
	if err := c.do(http.MethodGet, "/batches/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBatches sends GET /batches with the given query.
func (c *Client) ListBatches(query url.Values) ([]api.BatchResponse, error) {
	path := "/batches"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out api.ListBatchesResponse
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Batches, nil
}

// AddProgress sends POST /batches/{id}/progress.
func (c *Client) AddProgress(id string, req api.ProgressRequest) (*api.ProgressResponse, error) {
	var out api.ProgressResponse
	if err := c.do(http.MethodPost, "/batches/"+url.PathEscape(id)+"/progress", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddPackaging sends POST /batches/{id}/packaging.
func (c *Client) AddPackaging(id string, req api.PackagingRequest) (*api.PackagingResponse, error) {
	var out api.PackagingResponse
	if err := c.do(http.MethodPost, "/batches/"+url.PathEscape(id)+"/packaging", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FinalizePackaging sends POST /batches/{id}/finalize.
func (c *Client) FinalizePackaging(id string) (*api.BatchResponse, error) {
	var out api.BatchResponse
	if err := c.do(http.MethodPost, "/batches/"+url.PathEscape(id)+"/finalize", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetOutcome sends POST /batches/{id}/outcome.
func (c *Client) SetOutcome(id, outcome string) (*api.OutcomeResponse, error) {
	var out api.OutcomeResponse
	if err := c.do(http.MethodPost, "/batches/"+url.PathEscape(id)+"/outcome", api.OutcomeRequest{Outcome: outcome}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mark sends one of the status marks: start, finish or ready.
func (c *Client) Mark(id, mark string) (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.do(http.MethodPost, "/batches/"+url.PathEscape(id)+"/"+mark, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MoveBatch sends POST /batches/{ref}/move.
func (c *Client) MoveBatch(ref string, req api.MoveRequest) (*api.MoveResponse, error) {
	var out api.MoveResponse
	if err := c.do(http.MethodPost, "/batches/"+url.PathEscape(ref)+"/move", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MoveBatches sends POST /batches/move.
func (c *Client) MoveBatches(req api.BulkMoveRequest) (*api.BulkMoveResponse, error) {
	var out api.BulkMoveResponse
	if err := c.do(http.MethodPost, "/batches/move", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListHistory sends GET /rooms/{id}/history.
func (c *Client) ListHistory(roomID string, limit int) ([]api.HistoryRecordResponse, error) {
	var out api.ListHistoryResponse
	path := fmt.Sprintf("/rooms/%s/history?limit=%d", url.PathEscape(roomID), limit)
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// PurgeHistory sends DELETE /history.
func (c *Client) PurgeHistory(before string) (*api.PurgeHistoryResponse, error) {
	path := "/history"
	if before != "" {
		path += "?before=" + url.QueryEscape(before)
	}
	var out api.PurgeHistoryResponse
	if err := c.do(http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// printError reports a failed call the same way for every command.
func printError(cmd *cobra.Command, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
		if apiErr.Allowed != nil {
			cmd.Printf("Allowed: %d\n", *apiErr.Allowed)
		}
		for field, msg := range apiErr.Fields {
			cmd.Printf("  %s: %s\n", field, msg)
		}
		return
	}
	cmd.Printf("Error: %v\n", err)
}
