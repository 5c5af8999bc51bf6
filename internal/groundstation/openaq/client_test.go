package openaq_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auracast/auracast/internal/groundstation"
	"github.com/auracast/auracast/internal/groundstation/openaq"
	"github.com/auracast/auracast/internal/resilience"
)

const latestJSON = `{
  "meta": {"found": 4},
  "results": [
    {
      "datetime": {"utc": "2024-05-01T11:00:00Z", "local": "2024-05-01T16:30:00+05:30"},
      "value": 88.5,
      "coordinates": {"latitude": 28.6469, "longitude": 77.3164},
      "locationsId": 235,
      "location": "Anand Vihar, Delhi - DPCC",
      "parameter": {"units": "µg/m³", "displayName": "PM2.5"}
    },
    {
      "datetime": "2024-05-01T10:45:00Z",
      "value": 41.0,
      "coordinates": {"latitude": 28.5355, "longitude": 77.2639},
      "locationsId": 17
    },
    {
      "datetime": {"utc": "2024-05-01T11:00:00Z"},
      "value": null,
      "coordinates": {"latitude": 28.6, "longitude": 77.2}
    },
    {
      "datetime": {"utc": "2024-05-01T11:00:00Z"},
      "value": 12.0,
      "coordinates": null
    }
  ]
}`

func TestClient_FetchLatest(t *testing.T) {
	var gotPath, gotKey string
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(latestJSON))
	}))
	defer server.Close()

	client := openaq.NewClient(openaq.ClientConfig{
		BaseURL:    server.URL,
		APIKey:     "secret",
		HTTPClient: server.Client(),
	})

	readings, skipped, err := client.FetchLatest(context.Background(), groundstation.DefaultQuery())
	require.NoError(t, err)

	assert.Equal(t, "/parameters/2/latest", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, []string{"28.7041,77.1025"}, gotQuery["coordinates"])
	assert.Equal(t, []string{"25000"}, gotQuery["radius"])
	assert.Equal(t, []string{"1000"}, gotQuery["limit"])

	assert.Equal(t, 2, skipped)
	require.Len(t, readings, 2)

	first := readings[0]
	assert.Equal(t, 88.5, first.Value)
	assert.Equal(t, 28.6469, first.Lat)
	assert.Equal(t, 77.3164, first.Lon)
	assert.Equal(t, "µg/m³", first.Unit)
	assert.Equal(t, "PM2.5", first.ParameterName)
	assert.Equal(t, "Anand Vihar, Delhi - DPCC", first.LocationName)
	require.NotNil(t, first.MeasuredAt)
	assert.Equal(t, time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), *first.MeasuredAt)

	second := readings[1]
	assert.Equal(t, "pm25", second.ParameterName)
	assert.Equal(t, "location 17", second.LocationName)
	require.NotNil(t, second.MeasuredAt)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 45, 0, 0, time.UTC), *second.MeasuredAt)
}

func TestClient_FetchLatest_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	client := openaq.NewClient(openaq.ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})

	readings, skipped, err := client.FetchLatest(context.Background(), groundstation.DefaultQuery())
	require.NoError(t, err)
	assert.Empty(t, readings)
	assert.Zero(t, skipped)
}

func TestClient_FetchLatest_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid key"}`))
	}))
	defer server.Close()

	client := openaq.NewClient(openaq.ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})

	_, _, err := client.FetchLatest(context.Background(), groundstation.DefaultQuery())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid key")
}

func TestClient_DefaultClientRegisters(t *testing.T) {
	registry := resilience.NewRegistry()
	client := openaq.NewClient(openaq.ClientConfig{Registry: registry})

	assert.Equal(t, openaq.ProviderName, client.Name())
	assert.NotNil(t, registry.Health(openaq.ProviderName))
}
