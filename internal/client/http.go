package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jerrsapps1/opssync/internal/conflict"
	"github.com/jerrsapps1/opssync/internal/model"
)

// HTTPClient implements Client against the opssync HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the server at baseURL, for example
// "http://localhost:8080". A non-empty token is sent as a bearer
// Authorization header on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close satisfies the API interface; the HTTP client holds no resources.
func (c *HTTPClient) Close() error { return nil }

func entityPath(kind model.EntityKind, id string) string {
	return "/v1/entities/" + url.PathEscape(string(kind)) + "/" + url.PathEscape(id)
}

func (c *HTTPClient) CreateEntity(ctx context.Context, kind model.EntityKind, name string) (*model.Entity, error) {
	body := map[string]string{"kind": string(kind), "name": name}
	var entity model.Entity
	if err := c.doJSON(ctx, http.MethodPost, "/v1/entities", body, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (c *HTTPClient) GetEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error) {
	var entity model.Entity
	if err := c.doJSON(ctx, http.MethodGet, entityPath(kind, id), nil, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (c *HTTPClient) ListEntities(ctx context.Context, req *ListEntitiesRequest) (*ListEntitiesResponse, error) {
	q := url.Values{}
	if len(req.Kind) > 0 {
		kinds := make([]string, len(req.Kind))
		for i, k := range req.Kind {
			kinds[i] = string(k)
		}
		q.Set("kind", strings.Join(kinds, ","))
	}
	if len(req.Status) > 0 {
		statuses := make([]string, len(req.Status))
		for i, st := range req.Status {
			statuses[i] = string(st)
		}
		q.Set("status", strings.Join(statuses, ","))
	}
	if req.Assignment != nil {
		q.Set("assignment", string(*req.Assignment))
	}
	if req.Search != "" {
		q.Set("search", req.Search)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}

	path := "/v1/entities"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListEntitiesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) AssignEntity(ctx context.Context, kind model.EntityKind, id string, projectID model.Assignment) (*model.Entity, error) {
	body := map[string]model.Assignment{"projectId": projectID}
	var entity model.Entity
	if err := c.doJSON(ctx, http.MethodPatch, entityPath(kind, id)+"/assignment", body, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (c *HTTPClient) ArchiveEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error) {
	var entity model.Entity
	if err := c.doJSON(ctx, http.MethodPost, entityPath(kind, id)+"/archive", nil, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (c *HTTPClient) RestoreEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error) {
	var entity model.Entity
	if err := c.doJSON(ctx, http.MethodPost, entityPath(kind, id)+"/restore", nil, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (c *HTTPClient) RemoveEntity(ctx context.Context, kind model.EntityKind, id string) error {
	return c.doJSON(ctx, http.MethodDelete, entityPath(kind, id), nil, nil)
}

func (c *HTTPClient) FindConflicts(ctx context.Context) ([]conflict.Finding, error) {
	var resp struct {
		Conflicts []conflict.Finding `json:"conflicts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/conflicts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conflicts, nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// APIError is an HTTP-level failure that does not map to the mutation
// taxonomy (NotFound/Conflict are decoded into their model errors instead).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// mutationFailure mirrors the server's failure payload.
type mutationFailure struct {
	ErrorKind    string           `json:"errorKind"`
	Error        string           `json:"error"`
	CurrentValue model.Assignment `json:"currentValue"`
	Version      int64            `json:"version"`
}

// doJSON performs an HTTP request with optional JSON body and decodes the
// JSON response. If result is nil, the response body is discarded. Mutation
// failures come back as model.ErrNotFound or *model.ConflictError so callers
// can branch with errors.Is/As exactly like server-side code.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var failure mutationFailure
		if json.Unmarshal(respBody, &failure) == nil {
			switch failure.ErrorKind {
			case "NotFound":
				return model.ErrNotFound
			case "Conflict":
				return &model.ConflictError{
					Current: failure.CurrentValue,
					Version: failure.Version,
				}
			}
			if failure.Error != "" {
				return &APIError{StatusCode: resp.StatusCode, Message: failure.Error}
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
