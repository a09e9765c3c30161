package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eliamaps/elia/internal/domain"
)

// Client issues queries against a map server's REST protocol. It is
// stateless; every call carries the server base URL.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new map-server client with the given request timeout
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type layersEnvelope struct {
	Layers []struct {
		ID           int    `json:"id"`
		Name         string `json:"name"`
		GeometryType string `json:"geometryType"`
	} `json:"layers"`
}

type layerEnvelope struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	GeometryType string `json:"geometryType"`
	Fields       []struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Alias    string `json:"alias"`
		Nullable bool   `json:"nullable"`
	} `json:"fields"`
	Extent *struct {
		XMin             float64 `json:"xmin"`
		YMin             float64 `json:"ymin"`
		XMax             float64 `json:"xmax"`
		YMax             float64 `json:"ymax"`
		SpatialReference *struct {
			WKID int `json:"wkid"`
		} `json:"spatialReference"`
	} `json:"extent"`
}

// ListLayers fetches the layer catalog of a map server
func (c *Client) ListLayers(ctx context.Context, serverURL string) ([]domain.LayerSummary, error) {
	body, err := c.get(ctx, serverURL, "")
	if err != nil {
		return nil, err
	}

	var envelope layersEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed layer listing: %v", domain.ErrUpstreamUnavailable, err)
	}

	summaries := make([]domain.LayerSummary, 0, len(envelope.Layers))
	for _, l := range envelope.Layers {
		summaries = append(summaries, domain.LayerSummary{
			ID:           l.ID,
			Name:         l.Name,
			GeometryType: l.GeometryType,
		})
	}

	return summaries, nil
}

// DescribeLayer fetches the full metadata of one layer
func (c *Client) DescribeLayer(ctx context.Context, serverURL string, layerID int) (*domain.LayerDescriptor, error) {
	body, err := c.get(ctx, serverURL, fmt.Sprintf("%d", layerID))
	if err != nil {
		return nil, err
	}

	var envelope layerEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed layer metadata: %v", domain.ErrUpstreamUnavailable, err)
	}
	if envelope.Name == "" {
		return nil, fmt.Errorf("%w: layer %d has no metadata", domain.ErrUpstreamUnavailable, layerID)
	}

	desc := &domain.LayerDescriptor{
		ID:           envelope.ID,
		Name:         envelope.Name,
		Description:  envelope.Description,
		GeometryType: envelope.GeometryType,
	}
	for _, f := range envelope.Fields {
		desc.Fields = append(desc.Fields, domain.LayerField{
			Name:     f.Name,
			Type:     f.Type,
			Alias:    f.Alias,
			Nullable: f.Nullable,
		})
	}
	if envelope.Extent != nil {
		extent := &domain.Extent{
			XMin: envelope.Extent.XMin,
			YMin: envelope.Extent.YMin,
			XMax: envelope.Extent.XMax,
			YMax: envelope.Extent.YMax,
		}
		if envelope.Extent.SpatialReference != nil {
			extent.WKID = envelope.Extent.SpatialReference.WKID
		}
		desc.Extent = extent
	}

	return desc, nil
}

// get performs a JSON GET against the map server and classifies failures
func (c *Client) get(ctx context.Context, serverURL, path string) ([]byte, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid map server URL: %w", err)
	}
	if path != "" {
		u = u.JoinPath(path)
	}

	q := u.Query()
	q.Set("f", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: map server request failed: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read map server response: %v", domain.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: map server returned HTTP %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	return body, nil
}
