package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliamaps/elia/internal/config"
	"github.com/eliamaps/elia/internal/domain"
)

func TestClient_ListLayers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("f"))
		w.Write([]byte(`{
			"layers": [
				{"id": 0, "name": "Roads", "geometryType": "esriGeometryPolyline"},
				{"id": 1, "name": "Parcels", "geometryType": "esriGeometryPolygon"}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(5 * time.Second)
	layers, err := client.ListLayers(context.Background(), server.URL)

	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, 0, layers[0].ID)
	assert.Equal(t, "Roads", layers[0].Name)
	assert.Equal(t, "esriGeometryPolygon", layers[1].GeometryType)
}

func TestClient_DescribeLayer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2", r.URL.Path)
		w.Write([]byte(`{
			"id": 2,
			"name": "Parcels",
			"description": "Cadastral parcels",
			"geometryType": "esriGeometryPolygon",
			"fields": [
				{"name": "OBJECTID", "type": "esriFieldTypeOID", "alias": "OBJECTID", "nullable": false},
				{"name": "AREA_SQM", "type": "esriFieldTypeDouble", "alias": "Area (sqm)", "nullable": true}
			],
			"extent": {
				"xmin": 115.5, "ymin": -32.5, "xmax": 116.2, "ymax": -31.4,
				"spatialReference": {"wkid": 4326}
			}
		}`))
	}))
	defer server.Close()

	client := NewClient(5 * time.Second)
	desc, err := client.DescribeLayer(context.Background(), server.URL, 2)

	require.NoError(t, err)
	assert.Equal(t, 2, desc.ID)
	assert.Equal(t, "Parcels", desc.Name)
	require.Len(t, desc.Fields, 2)
	assert.Equal(t, "AREA_SQM", desc.Fields[1].Name)
	assert.True(t, desc.Fields[1].Nullable)
	require.NotNil(t, desc.Extent)
	assert.Equal(t, 4326, desc.Extent.WKID)
}

func TestClient_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			"http 500",
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			"malformed json",
			func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"layers": [`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(5 * time.Second)
			_, err := client.ListLayers(context.Background(), server.URL)
			assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"layers": []}`))
	}))
	defer server.Close()

	client := NewClient(20 * time.Millisecond)
	_, err := client.ListLayers(context.Background(), server.URL)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestClient_DescribeLayerMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(5 * time.Second)
	_, err := client.DescribeLayer(context.Background(), server.URL, 99)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestGeoflipClient_Buffer(t *testing.T) {
	buffered := `{"type":"FeatureCollection","features":[{"type":"Feature"}]}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transform/geojson", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(buffered))
	}))
	defer server.Close()

	client := NewGeoflipClient(config.GeoflipConfig{APIURL: server.URL, APIKey: "test-key"}, 5*time.Second)
	require.True(t, client.IsConfigured())

	result, err := client.Buffer(context.Background(), `{"type":"FeatureCollection","features":[]}`, 100, "meters")
	require.NoError(t, err)
	assert.JSONEq(t, buffered, string(result))
}

func TestGeoflipClient_BufferUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewGeoflipClient(config.GeoflipConfig{APIURL: server.URL, APIKey: "test-key"}, 5*time.Second)
	_, err := client.Buffer(context.Background(), `{}`, 100, "meters")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestGeoflipClient_IsConfigured(t *testing.T) {
	client := NewGeoflipClient(config.GeoflipConfig{}, time.Second)
	assert.False(t, client.IsConfigured())
}

func TestPlacesClient_FindPlace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/textsearch/json", r.URL.Path)
		assert.Equal(t, "Kings Park Perth", r.URL.Query().Get("query"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "-31.95,115.86", r.URL.Query().Get("location"))
		assert.Equal(t, "10000", r.URL.Query().Get("radius"))
		w.Write([]byte(`{
			"status": "OK",
			"results": [
				{
					"name": "Kings Park",
					"formatted_address": "Fraser Ave, Perth WA 6005",
					"geometry": {"location": {"lat": -31.9614, "lng": 115.8333}}
				},
				{
					"name": "Kings Park Tennis Club",
					"formatted_address": "Kings Park Rd, West Perth WA 6005",
					"geometry": {"location": {"lat": -31.946, "lng": 115.838}}
				}
			]
		}`))
	}))
	defer server.Close()

	client := NewPlacesClient(config.PlacesConfig{APIURL: server.URL, APIKey: "test-key"}, 5*time.Second)
	require.True(t, client.IsConfigured())

	place, err := client.FindPlace(context.Background(), "Kings Park Perth", "-31.95,115.86", 10000)
	require.NoError(t, err)
	require.NotNil(t, place)
	assert.Equal(t, "Kings Park", place.Name)
	assert.Equal(t, "Fraser Ave, Perth WA 6005", place.Address)
	assert.Equal(t, -31.9614, place.Lat)
	assert.Equal(t, 115.8333, place.Lng)
}

func TestPlacesClient_FindPlaceNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer server.Close()

	client := NewPlacesClient(config.PlacesConfig{APIURL: server.URL, APIKey: "test-key"}, 5*time.Second)
	place, err := client.FindPlace(context.Background(), "nowhere at all", "", 0)
	require.NoError(t, err)
	assert.Nil(t, place)
}

func TestPlacesClient_FindPlaceUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewPlacesClient(config.PlacesConfig{APIURL: server.URL, APIKey: "test-key"}, 5*time.Second)
	_, err := client.FindPlace(context.Background(), "Kings Park", "", 0)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestPlacesClient_IsConfigured(t *testing.T) {
	client := NewPlacesClient(config.PlacesConfig{APIURL: "https://maps.googleapis.com/maps/api/place"}, time.Second)
	assert.False(t, client.IsConfigured())
}
