package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliamaps/elia/internal/domain"
	"github.com/eliamaps/elia/internal/llm"
)

func testTool(name string) Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        name,
			Description: "test tool",
			Parameters: map[string]llm.ToolParam{
				"layer_id": {Type: "integer", Description: "layer id", Required: true},
				"verbose":  {Type: "boolean", Description: "verbosity"},
				"units":    {Type: "string", Description: "distance units", Enum: []string{"meters", "kilometers"}},
			},
		},
		Handler: func(ctx context.Context, inv Invocation, args map[string]any) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testTool("describe_layer")))
	assert.Error(t, r.Register(testTool("describe_layer")))
}

func TestRegistry_CatalogPreservesOrder(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(testTool("b_tool"))
	r.MustRegister(testTool("a_tool"))

	defs := r.Catalog()
	require.Len(t, defs, 2)
	assert.Equal(t, "b_tool", defs[0].Name)
	assert.Equal(t, "a_tool", defs[1].Name)
}

func TestDispatch_UnknownTool(t *testing.T) {
	r := NewRegistry()

	_, toolErr := r.Dispatch(context.Background(), Invocation{}, llm.ToolCall{Name: "nope"})
	require.NotNil(t, toolErr)
	assert.ErrorIs(t, toolErr, domain.ErrToolNotFound)
	assert.Equal(t, "nope", toolErr.Tool)
}

func TestDispatch_ParameterValidation(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(testTool("describe_layer"))

	tests := []struct {
		name string
		args map[string]any
		ok   bool
	}{
		{"valid", map[string]any{"layer_id": float64(3)}, true},
		{"valid with optional", map[string]any{"layer_id": float64(3), "verbose": true}, true},
		{"missing required", map[string]any{}, false},
		{"wrong type", map[string]any{"layer_id": "three"}, false},
		{"non-integral number", map[string]any{"layer_id": 3.5}, false},
		{"unexpected parameter", map[string]any{"layer_id": float64(3), "extra": "x"}, false},
		{"enum member", map[string]any{"layer_id": float64(3), "units": "kilometers"}, true},
		{"out-of-enum value", map[string]any{"layer_id": float64(3), "units": "parsecs"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, toolErr := r.Dispatch(context.Background(), Invocation{}, llm.ToolCall{
				Name: "describe_layer",
				Args: tt.args,
			})
			if tt.ok {
				require.Nil(t, toolErr)
				assert.Equal(t, map[string]any{"ok": true}, result)
			} else {
				require.NotNil(t, toolErr)
				assert.ErrorIs(t, toolErr, domain.ErrInvalidToolParameters)
			}
		})
	}
}

func TestDispatch_HandlerErrorsAreWrapped(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Tool{
		Definition: llm.ToolDefinition{Name: "broken", Description: "always fails", Parameters: map[string]llm.ToolParam{}},
		Handler: func(ctx context.Context, inv Invocation, args map[string]any) (map[string]any, error) {
			return nil, errors.New("boom")
		},
	})

	_, toolErr := r.Dispatch(context.Background(), Invocation{}, llm.ToolCall{Name: "broken"})
	require.NotNil(t, toolErr)
	assert.Equal(t, "broken", toolErr.Tool)

	payload := toolErr.Payload()
	assert.Equal(t, "tool execution failed", payload["error"])
	assert.Equal(t, "boom", payload["detail"])
}

// fakeMapCatalog backs the catalog tests without a live map server
type fakeMapCatalog struct {
	layers    []domain.LayerSummary
	descs     map[int]*domain.LayerDescriptor
	err       error
	describes int
}

func (f *fakeMapCatalog) ListLayers(ctx context.Context, serverURL string) ([]domain.LayerSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.layers, nil
}

func (f *fakeMapCatalog) DescribeLayer(ctx context.Context, serverURL string, layerID int) (*domain.LayerDescriptor, error) {
	f.describes++
	if f.err != nil {
		return nil, f.err
	}
	desc, ok := f.descs[layerID]
	if !ok {
		return nil, domain.ErrUpstreamUnavailable
	}
	return desc, nil
}

type fakeLayerCache struct {
	entries map[int]*domain.LayerDescriptor
}

func (f *fakeLayerCache) Get(ctx context.Context, serverURL string, layerID int) (*domain.LayerDescriptor, error) {
	return f.entries[layerID], nil
}

func (f *fakeLayerCache) Set(ctx context.Context, serverURL string, desc *domain.LayerDescriptor) error {
	f.entries[desc.ID] = desc
	return nil
}

type fakeGeoprocessor struct {
	configured bool
	result     json.RawMessage
	err        error
}

func (f *fakeGeoprocessor) IsConfigured() bool { return f.configured }

func (f *fakeGeoprocessor) Buffer(ctx context.Context, geojson string, distance float64, units string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakePlaceFinder struct {
	configured bool
	place      *domain.Place
	err        error
}

func (f *fakePlaceFinder) IsConfigured() bool { return f.configured }

func (f *fakePlaceFinder) FindPlace(ctx context.Context, query, location string, radius int) (*domain.Place, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.place, nil
}

func TestCatalog_ListLayers(t *testing.T) {
	maps := &fakeMapCatalog{layers: []domain.LayerSummary{
		{ID: 0, Name: "Roads", GeometryType: "esriGeometryPolyline"},
		{ID: 1, Name: "Parcels", GeometryType: "esriGeometryPolygon"},
	}}
	r := NewCatalog(maps, nil, nil, nil)

	result, toolErr := r.Dispatch(context.Background(), Invocation{ServerURL: "https://maps.example.com/MapServer"}, llm.ToolCall{
		Name: "list_layers",
		Args: map[string]any{},
	})
	require.Nil(t, toolErr)

	layers, ok := result["layers"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, layers, 2)
	assert.Equal(t, "Roads", layers[0]["name"])
}

func TestCatalog_ListLayersNoServer(t *testing.T) {
	r := NewCatalog(&fakeMapCatalog{}, nil, nil, nil)

	_, toolErr := r.Dispatch(context.Background(), Invocation{}, llm.ToolCall{
		Name: "list_layers",
		Args: map[string]any{},
	})
	require.NotNil(t, toolErr)
	assert.ErrorIs(t, toolErr, domain.ErrInvalidToolParameters)
}

func TestCatalog_DescribeLayerUsesCache(t *testing.T) {
	maps := &fakeMapCatalog{descs: map[int]*domain.LayerDescriptor{
		2: {ID: 2, Name: "Parcels", GeometryType: "esriGeometryPolygon"},
	}}
	cache := &fakeLayerCache{entries: map[int]*domain.LayerDescriptor{}}
	r := NewCatalog(maps, nil, nil, cache)

	inv := Invocation{ServerURL: "https://maps.example.com/MapServer"}
	call := llm.ToolCall{Name: "describe_layer", Args: map[string]any{"layer_id": float64(2)}}

	_, toolErr := r.Dispatch(context.Background(), inv, call)
	require.Nil(t, toolErr)
	assert.Equal(t, 1, maps.describes)

	// Second call is served from cache.
	_, toolErr = r.Dispatch(context.Background(), inv, call)
	require.Nil(t, toolErr)
	assert.Equal(t, 1, maps.describes)
}

func TestCatalog_AddMarker(t *testing.T) {
	r := NewCatalog(&fakeMapCatalog{}, nil, nil, nil)

	result, toolErr := r.Dispatch(context.Background(), Invocation{}, llm.ToolCall{
		Name: "add_marker",
		Args: map[string]any{"latitude": -31.95, "longitude": 115.86, "label": "Perth"},
	})
	require.Nil(t, toolErr)
	assert.Equal(t, -31.95, result["latitude"])
	assert.Equal(t, "Perth", result["label"])
}

func TestCatalog_UpdateMapDataRejectsInvalidJSON(t *testing.T) {
	r := NewCatalog(&fakeMapCatalog{}, nil, nil, nil)

	_, toolErr := r.Dispatch(context.Background(), Invocation{}, llm.ToolCall{
		Name: "update_map_data",
		Args: map[string]any{"geojson": "{not json"},
	})
	require.NotNil(t, toolErr)
	assert.ErrorIs(t, toolErr, domain.ErrInvalidToolParameters)
}

func TestCatalog_FindPlace(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		r := NewCatalog(&fakeMapCatalog{}, nil, &fakePlaceFinder{configured: false}, nil)
		_, toolErr := r.Dispatch(context.Background(), Invocation{}, llm.ToolCall{
			Name: "find_place",
			Args: map[string]any{"query": "Kings Park"},
		})
		require.NotNil(t, toolErr)
		assert.ErrorIs(t, toolErr, domain.ErrUpstreamUnavailable)
	})

	t.Run("no results", func(t *testing.T) {
		r := NewCatalog(&fakeMapCatalog{}, nil, &fakePlaceFinder{configured: true}, nil)
		_, toolErr := r.Dispatch(context.Background(), Invocation{}, llm.ToolCall{
			Name: "find_place",
			Args: map[string]any{"query": "nowhere at all"},
		})
		require.NotNil(t, toolErr)
		assert.NotErrorIs(t, toolErr, domain.ErrUpstreamUnavailable)
		assert.Contains(t, toolErr.Reason, "no places found")
	})

	t.Run("success", func(t *testing.T) {
		finder := &fakePlaceFinder{configured: true, place: &domain.Place{
			Name:    "Kings Park",
			Address: "Fraser Ave, Perth WA",
			Lat:     -31.9614,
			Lng:     115.8333,
		}}
		r := NewCatalog(&fakeMapCatalog{}, nil, finder, nil)
		result, toolErr := r.Dispatch(context.Background(), Invocation{}, llm.ToolCall{
			Name: "find_place",
			Args: map[string]any{"query": "Kings Park", "location": "-31.95,115.86", "radius": float64(10000)},
		})
		require.Nil(t, toolErr)
		assert.Equal(t, "Kings Park", result["name"])
		assert.Equal(t, -31.9614, result["lat"])
	})
}

func TestCatalog_BufferFeatures(t *testing.T) {
	geojson := `{"type":"FeatureCollection","features":[]}`

	t.Run("not configured", func(t *testing.T) {
		r := NewCatalog(&fakeMapCatalog{}, &fakeGeoprocessor{configured: false}, nil, nil)
		_, toolErr := r.Dispatch(context.Background(), Invocation{MapData: geojson}, llm.ToolCall{
			Name: "buffer_features",
			Args: map[string]any{"distance": 100.0, "units": "meters"},
		})
		require.NotNil(t, toolErr)
		assert.ErrorIs(t, toolErr, domain.ErrUpstreamUnavailable)
	})

	t.Run("no map data", func(t *testing.T) {
		r := NewCatalog(&fakeMapCatalog{}, &fakeGeoprocessor{configured: true}, nil, nil)
		_, toolErr := r.Dispatch(context.Background(), Invocation{}, llm.ToolCall{
			Name: "buffer_features",
			Args: map[string]any{"distance": 100.0, "units": "meters"},
		})
		require.NotNil(t, toolErr)
		assert.ErrorIs(t, toolErr, domain.ErrInvalidToolParameters)
	})

	t.Run("success", func(t *testing.T) {
		buffered := json.RawMessage(`{"type":"FeatureCollection","features":[{}]}`)
		r := NewCatalog(&fakeMapCatalog{}, &fakeGeoprocessor{configured: true, result: buffered}, nil, nil)
		result, toolErr := r.Dispatch(context.Background(), Invocation{MapData: geojson}, llm.ToolCall{
			Name: "buffer_features",
			Args: map[string]any{"distance": 100.0, "units": "meters"},
		})
		require.Nil(t, toolErr)
		assert.Equal(t, string(buffered), result["geojson"])
	})
}
