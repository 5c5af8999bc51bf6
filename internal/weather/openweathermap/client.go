// Package openweathermap provides a current-weather client for OpenWeatherMap.
package openweathermap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/auracast/auracast/internal/resilience"
	"github.com/auracast/auracast/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
)

// ErrIncompleteResponse is returned when a reading lacks a required field.
var ErrIncompleteResponse = errors.New("incomplete weather response")

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// HTTPClient overrides the default resilient client.
	HTTPClient HTTPDoer

	// Timeout for individual requests when HTTPClient is nil.
	Timeout time.Duration

	// Registry receives the default resilient client for health reporting.
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client is an OpenWeatherMap API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ weather.Provider = (*Client)(nil)

// NewClient creates a new OpenWeatherMap client.
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
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// CurrentConditions fetches current weather for a location in metric units.
func (c *Client) CurrentConditions(ctx context.Context, lat, lon float64) (weather.Conditions, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/weather?"+params.Encode(), http.NoBody)
	if err != nil {
		return weather.Conditions{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return weather.Conditions{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Message == "" {
			e.Message = "unknown error"
		}
		return weather.Conditions{}, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, e.Message)
	}

	var owmResp currentWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&owmResp); err != nil {
		return weather.Conditions{}, fmt.Errorf("decoding response: %w", err)
	}

	return toConditions(&owmResp)
}

// toConditions converts the API response, rejecting readings with missing fields.
func toConditions(resp *currentWeatherResponse) (weather.Conditions, error) {
	var missing []string
	if resp.Main.Temp == nil {
		missing = append(missing, "main.temp")
	}
	if resp.Main.Humidity == nil {
		missing = append(missing, "main.humidity")
	}
	if resp.Wind.Speed == nil {
		missing = append(missing, "wind.speed")
	}
	if resp.Wind.Deg == nil {
		missing = append(missing, "wind.deg")
	}
	if len(missing) > 0 {
		return weather.Conditions{}, fmt.Errorf("%w: %s", ErrIncompleteResponse, strings.Join(missing, ", "))
	}

	return weather.Conditions{
		Temperature:   *resp.Main.Temp,
		WindSpeed:     *resp.Wind.Speed,
		WindDirection: *resp.Wind.Deg,
		Humidity:      *resp.Main.Humidity,
	}, nil
}

// OpenWeatherMap API response structures.

type currentWeatherResponse struct {
	Main struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
}

type errorResponse struct {
	Message string `json:"message"`
}
