// Package openaq provides a client for the OpenAQ v3 latest-measurements API.
package openaq

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
	"time"

	"github.com/rs/zerolog"

	"github.com/auracast/auracast/internal/groundstation"
	"github.com/auracast/auracast/internal/observation"
	"github.com/auracast/auracast/internal/resilience"
)

const (
	// DefaultBaseURL is the OpenAQ v3 API root.
	DefaultBaseURL = "https://api.openaq.org/v3"

	// ProviderName identifies this provider.
	ProviderName = "openaq"

	defaultParameterName = "pm25"
	defaultUnit          = "µg/m³"
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenAQ client.
type ClientConfig struct {
	BaseURL string
	APIKey  string

	// HTTPClient overrides the default resilient client.
	HTTPClient HTTPDoer

	// Timeout for individual requests when HTTPClient is nil. Default: 10s.
	Timeout time.Duration

	// Registry receives the default resilient client for health reporting.
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client is an OpenAQ API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ groundstation.Provider = (*Client)(nil)

// NewClient creates an OpenAQ client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		if cfg.Timeout > 0 {
			rc.Timeout = cfg.Timeout
		}
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name implements groundstation.Provider.
func (c *Client) Name() string {
	return ProviderName
}

// API response types.

type latestResponse struct {
	Results []latestResult `json:"results"`
}

type latestResult struct {
	Datetime    json.RawMessage `json:"datetime"`
	Value       *float64        `json:"value"`
	Coordinates *coordinates    `json:"coordinates"`
	Location    string          `json:"location"`
	LocationsID int             `json:"locationsId"`
	Parameter   *parameter      `json:"parameter"`
}

type coordinates struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type parameter struct {
	Units       string `json:"units"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
}

type datetimeObject struct {
	UTC string `json:"utc"`
}

// FetchLatest implements groundstation.Provider.
func (c *Client) FetchLatest(ctx context.Context, q groundstation.Query) ([]observation.Ground, int, error) {
	params := url.Values{}
	params.Set("coordinates", strconv.FormatFloat(q.Lat, 'f', -1, 64)+","+strconv.FormatFloat(q.Lon, 'f', -1, 64))
	params.Set("radius", strconv.Itoa(q.RadiusMeters))
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("order_by", "id")
	params.Set("sort_order", "asc")

	endpoint := fmt.Sprintf("%s/parameters/%d/latest?%s", c.baseURL, q.ParameterID, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch latest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("unexpected status %d from latest endpoint: %s",
			resp.StatusCode, bytes.TrimSpace(body))
	}

	var result latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, 0, fmt.Errorf("decode latest response: %w", err)
	}

	readings := make([]observation.Ground, 0, len(result.Results))
	skipped := 0
	for i := range result.Results {
		g, ok := c.toGround(&result.Results[i])
		if !ok {
			skipped++
			continue
		}
		readings = append(readings, g)
	}

	return readings, skipped, nil
}

// toGround converts an API result, rejecting records without coordinates or value.
func (c *Client) toGround(r *latestResult) (observation.Ground, bool) {
	if r.Value == nil || r.Coordinates == nil || r.Coordinates.Latitude == nil || r.Coordinates.Longitude == nil {
		return observation.Ground{}, false
	}
	lat, lon := *r.Coordinates.Latitude, *r.Coordinates.Longitude
	if !observation.ValidCoordinates(lat, lon) {
		return observation.Ground{}, false
	}

	g := observation.Ground{
		Lat:           lat,
		Lon:           lon,
		Value:         *r.Value,
		Unit:          defaultUnit,
		LocationName:  r.Location,
		ParameterName: defaultParameterName,
		MeasuredAt:    parseDatetime(r.Datetime),
	}
	if g.LocationName == "" && r.LocationsID != 0 {
		g.LocationName = "location " + strconv.Itoa(r.LocationsID)
	}
	if p := r.Parameter; p != nil {
		if p.Units != "" {
			g.Unit = p.Units
		}
		switch {
		case p.DisplayName != "":
			g.ParameterName = p.DisplayName
		case p.Name != "":
			g.ParameterName = p.Name
		}
	}
	return g, true
}

// parseDatetime accepts either an RFC 3339 string or an object with a "utc" field.
func parseDatetime(raw json.RawMessage) *time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var obj datetimeObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil
		}
		s = obj.UTC
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
