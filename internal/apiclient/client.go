package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"loreweave/internal/api"
)

// ErrAPIUnavailable reports that no daemon API is configured or reachable.
var ErrAPIUnavailable = errors.New("loreweave API unavailable")

// Error is a non-2xx response decoded from the daemon.
type Error struct {
	StatusCode int
	Kind       string
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.StatusCode)
	}
	return e.Message
}

// Client issues requests against the daemon API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New builds a client for the given bind address. An empty bind yields a nil
// client; every method on a nil client returns ErrAPIUnavailable.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	CampaignID  int64
	SourceTable string
	SourceID    int64
	SourceField string
	Status      string
	Limit       int
}

// ItemFilter narrows ListItems.
type ItemFilter struct {
	Resolution    string
	Phase         string
	DetectionType string
}

func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

func (c *Client) TriggerAnalysis(ctx context.Context, req api.TriggerAnalysisRequest) (api.AnalysisResponse, error) {
	var out api.AnalysisResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs", nil, req, &out)
	return out, err
}

func (c *Client) ListJobs(ctx context.Context, f JobFilter) ([]api.Job, error) {
	values := url.Values{}
	setInt(values, "campaignId", f.CampaignID)
	setString(values, "sourceTable", f.SourceTable)
	setInt(values, "sourceId", f.SourceID)
	setString(values, "sourceField", f.SourceField)
	setString(values, "status", f.Status)
	setInt(values, "limit", int64(f.Limit))

	var out api.JobListResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs", values, nil, &out)
	return out.Jobs, err
}

func (c *Client) GetJob(ctx context.Context, jobID int64) (api.Job, error) {
	var out api.JobResponse
	err := c.do(ctx, http.MethodGet, jobPath(jobID, ""), nil, nil, &out)
	return out.Job, err
}

func (c *Client) ListItems(ctx context.Context, jobID int64, f ItemFilter) ([]api.Item, error) {
	values := url.Values{}
	setString(values, "resolution", f.Resolution)
	setString(values, "phase", f.Phase)
	setString(values, "detectionType", f.DetectionType)

	var out api.ItemListResponse
	err := c.do(ctx, http.MethodGet, jobPath(jobID, "/items"), values, nil, &out)
	return out.Items, err
}

func (c *Client) ResolveItem(ctx context.Context, itemID int64, req api.ResolveItemRequest) (api.Item, error) {
	var out api.ItemResponse
	err := c.do(ctx, http.MethodPost, itemPath(itemID, "/resolve"), nil, req, &out)
	return out.Item, err
}

func (c *Client) RevertItem(ctx context.Context, itemID int64) (api.Item, error) {
	var out api.ItemResponse
	err := c.do(ctx, http.MethodPost, itemPath(itemID, "/revert"), nil, nil, &out)
	return out.Item, err
}

func (c *Client) BatchResolve(ctx context.Context, jobID int64, req api.BatchResolveRequest) (api.BatchResolveResponse, error) {
	var out api.BatchResolveResponse
	err := c.do(ctx, http.MethodPost, jobPath(jobID, "/batch-resolve"), nil, req, &out)
	return out, err
}

func (c *Client) TriggerEnrichment(ctx context.Context, jobID int64) (api.EnrichmentResponse, error) {
	var out api.EnrichmentResponse
	err := c.do(ctx, http.MethodPost, jobPath(jobID, "/enrichment"), nil, nil, &out)
	return out, err
}

func (c *Client) CancelEnrichment(ctx context.Context, jobID int64) (api.CancelEnrichmentResponse, error) {
	var out api.CancelEnrichmentResponse
	err := c.do(ctx, http.MethodDelete, jobPath(jobID, "/enrichment"), nil, nil, &out)
	return out, err
}

func (c *Client) PendingCount(ctx context.Context, campaignID int64, sourceTable string, sourceID int64) (int, error) {
	values := url.Values{}
	setInt(values, "campaignId", campaignID)
	setString(values, "sourceTable", sourceTable)
	setInt(values, "sourceId", sourceID)

	var out api.PendingCountResponse
	err := c.do(ctx, http.MethodGet, "/api/pending-count", values, nil, &out)
	return out.Count, err
}

func (c *Client) CreateEntity(ctx context.Context, campaignID int64, req api.CreateEntityRequest) (api.Entity, error) {
	var out api.EntityResponse
	err := c.do(ctx, http.MethodPost, campaignPath(campaignID), nil, req, &out)
	return out.Entity, err
}

func (c *Client) ListEntities(ctx context.Context, campaignID int64) ([]api.Entity, error) {
	var out api.EntityListResponse
	err := c.do(ctx, http.MethodGet, campaignPath(campaignID), nil, nil, &out)
	return out.Entities, err
}

func jobPath(id int64, suffix string) string {
	return "/api/jobs/" + strconv.FormatInt(id, 10) + suffix
}

func itemPath(id int64, suffix string) string {
	return "/api/items/" + strconv.FormatInt(id, 10) + suffix
}

func campaignPath(id int64) string {
	return "/api/campaigns/" + strconv.FormatInt(id, 10) + "/entities"
}

func setInt(values url.Values, key string, v int64) {
	if v > 0 {
		values.Set(key, strconv.FormatInt(v, 10))
	}
}

func setString(values url.Values, key, v string) {
	if strings.TrimSpace(v) != "" {
		values.Set(key, strings.TrimSpace(v))
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var payload api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Kind = payload.Kind
			apiErr.Message = payload.Error
			apiErr.RequestID = payload.RequestID
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
