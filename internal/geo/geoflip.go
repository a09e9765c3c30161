package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eliamaps/elia/internal/config"
	"github.com/eliamaps/elia/internal/domain"
)

// GeoflipClient calls the Geoflip transform API for geoprocessing operations
// on GeoJSON feature collections.
type GeoflipClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewGeoflipClient creates a new Geoflip client
func NewGeoflipClient(cfg config.GeoflipConfig, timeout time.Duration) *GeoflipClient {
	return &GeoflipClient{
		apiURL: cfg.APIURL,
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// IsConfigured reports whether the client has an API endpoint and key
func (c *GeoflipClient) IsConfigured() bool {
	return c.apiURL != "" && c.apiKey != ""
}

type transformation struct {
	Type     string  `json:"type"`
	Distance float64 `json:"distance,omitempty"`
	Units    string  `json:"units,omitempty"`
}

type transformRequest struct {
	InputGeoJSON    json.RawMessage  `json:"input_geojson"`
	OutputFormat    string           `json:"output_format"`
	OutputCRS       string           `json:"output_crs"`
	Transformations []transformation `json:"transformations"`
}

// Buffer buffers all features of the given GeoJSON collection by distance in
// the given units and returns the transformed collection. Output stays in
// EPSG:4326.
func (c *GeoflipClient) Buffer(ctx context.Context, geojson string, distance float64, units string) (json.RawMessage, error) {
	payload := transformRequest{
		InputGeoJSON: json.RawMessage(geojson),
		OutputFormat: "geojson",
		OutputCRS:    "EPSG:4326",
		Transformations: []transformation{
			{Type: "buffer", Distance: distance, Units: units},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transform request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/v1/transform/geojson", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: geoflip request failed: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read geoflip response: %v", domain.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: geoflip returned HTTP %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("%w: geoflip returned invalid JSON", domain.ErrUpstreamUnavailable)
	}

	return json.RawMessage(respBody), nil
}
