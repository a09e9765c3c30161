package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/eliamaps/elia/internal/config"
	"github.com/eliamaps/elia/internal/domain"
)

// PlacesClient resolves place names to coordinates through the Google Places
// text search API.
type PlacesClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewPlacesClient creates a new place-search client
func NewPlacesClient(cfg config.PlacesConfig, timeout time.Duration) *PlacesClient {
	return &PlacesClient{
		apiURL: cfg.APIURL,
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// IsConfigured reports whether the client has an API key
func (c *PlacesClient) IsConfigured() bool {
	return c.apiURL != "" && c.apiKey != ""
}

type placesEnvelope struct {
	Status  string `json:"status"`
	Results []struct {
		Name             string `json:"name"`
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// FindPlace searches for a place by free-text query and returns the first
// match. location ("lat,lng") and radius (meters) optionally bias the search
// nearby. A query with no matches returns (nil, nil).
func (c *PlacesClient) FindPlace(ctx context.Context, query, location string, radius int) (*domain.Place, error) {
	u, err := url.Parse(c.apiURL + "/textsearch/json")
	if err != nil {
		return nil, fmt.Errorf("invalid places API URL: %w", err)
	}

	q := u.Query()
	q.Set("query", query)
	q.Set("key", c.apiKey)
	if location != "" {
		q.Set("location", location)
		if radius <= 0 {
			radius = 50000
		}
		q.Set("radius", strconv.Itoa(radius))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: places request failed: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read places response: %v", domain.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: places API returned HTTP %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var envelope placesEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed places response: %v", domain.ErrUpstreamUnavailable, err)
	}

	if envelope.Status == "ZERO_RESULTS" || len(envelope.Results) == 0 {
		return nil, nil
	}
	if envelope.Status != "OK" {
		return nil, fmt.Errorf("%w: places API returned status %s", domain.ErrUpstreamUnavailable, envelope.Status)
	}

	first := envelope.Results[0]
	return &domain.Place{
		Name:    first.Name,
		Address: first.FormattedAddress,
		Lat:     first.Geometry.Location.Lat,
		Lng:     first.Geometry.Location.Lng,
	}, nil
}
