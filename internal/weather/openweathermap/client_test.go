package openweathermap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auracast/auracast/internal/resilience"
	"github.com/auracast/auracast/internal/weather/openweathermap"
)

func TestClient_CurrentConditions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "28.61", r.URL.Query().Get("lat"))
		assert.Equal(t, "77.21", r.URL.Query().Get("lon"))
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"coord": {"lat": 28.61, "lon": 77.21},
			"weather": [{"id": 721, "main": "Haze", "description": "haze"}],
			"main": {"temp": 31.2, "feels_like": 33.0, "pressure": 1006, "humidity": 48},
			"wind": {"speed": 3.6, "deg": 290},
			"dt": 1714564800,
			"name": "New Delhi"
		}`))
	}))
	defer server.Close()

	client := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})

	c, err := client.CurrentConditions(context.Background(), 28.61, 77.21)
	require.NoError(t, err)

	assert.Equal(t, 31.2, c.Temperature)
	assert.Equal(t, 3.6, c.WindSpeed)
	assert.Equal(t, 290.0, c.WindDirection)
	assert.Equal(t, 48.0, c.Humidity)
}

func TestClient_CurrentConditions_MissingWindDirection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"main": {"temp": 20, "humidity": 60}, "wind": {"speed": 0}}`))
	}))
	defer server.Close()

	client := openweathermap.NewClient(openweathermap.ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})

	_, err := client.CurrentConditions(context.Background(), 1, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, openweathermap.ErrIncompleteResponse)
	assert.Contains(t, err.Error(), "wind.deg")
}

func TestClient_CurrentConditions_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"cod": 401, "message": "Invalid API key"}`))
	}))
	defer server.Close()

	client := openweathermap.NewClient(openweathermap.ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})

	_, err := client.CurrentConditions(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestClient_Name(t *testing.T) {
	registry := resilience.NewRegistry()
	client := openweathermap.NewClient(openweathermap.ClientConfig{APIKey: "k", Registry: registry})

	assert.Equal(t, "openweathermap", client.Name())
	assert.NotNil(t, registry.Health(openweathermap.ProviderName))
}
