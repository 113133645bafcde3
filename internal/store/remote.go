package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/scbrown/storyrun/internal/model"
)

// RemoteStore implements Store by forwarding requests over HTTP to an
// sr serve instance.
type RemoteStore struct {
	baseURL string
	client  *http.Client
}

// NewRemote creates a RemoteStore pointing at the given base URL (e.g., "http://localhost:7274").
func NewRemote(baseURL string) *RemoteStore {
	return &RemoteStore{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (r *RemoteStore) LoadTree(ctx context.Context) (model.StoryFolder, error) {
	var root model.StoryFolder
	if err := r.getJSON(ctx, "/api/v1/tree", nil, &root); err != nil {
		return model.StoryFolder{}, err
	}
	return root, nil
}

func (r *RemoteStore) SaveTree(ctx context.Context, root model.StoryFolder) error {
	return r.sendJSON(ctx, http.MethodPut, "/api/v1/tree", root, nil)
}

func (r *RemoteStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	var t model.Template
	err := r.getJSON(ctx, "/api/v1/templates/"+url.PathEscape(id), nil, &t)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *RemoteStore) ListTemplates(ctx context.Context) ([]model.Template, error) {
	var templates []model.Template
	if err := r.getJSON(ctx, "/api/v1/templates", nil, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *RemoteStore) AddTemplates(ctx context.Context, templates []model.Template) error {
	return r.sendJSON(ctx, http.MethodPost, "/api/v1/templates", templates, nil)
}

// Close is a no-op for the remote store.
func (r *RemoteStore) Close() error {
	return nil
}

// getJSON performs a GET request and decodes the JSON response into dst.
func (r *RemoteStore) getJSON(ctx context.Context, path string, query url.Values, dst any) error {
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return remoteError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// sendJSON performs a request with a JSON body and optionally decodes the response.
func (r *RemoteStore) sendJSON(ctx context.Context, method, path string, body any, dst any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	u := r.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return remoteError(resp)
	}
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// remoteError reads an error response from the server and returns it as an
// error. The kind field the server sets is mapped back to the matching
// sentinel so errors.Is works across the wire.
func remoteError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if json.Unmarshal(body, &errResp) != nil || errResp.Error == "" {
		return fmt.Errorf("remote store (%d): %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if sentinel := model.ErrorForKind(errResp.Kind); sentinel != nil {
		return fmt.Errorf("remote store (%d): %w: %s", resp.StatusCode, sentinel, errResp.Error)
	}
	return fmt.Errorf("remote store (%d): %s", resp.StatusCode, errResp.Error)
}
