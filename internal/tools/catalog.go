package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eliamaps/elia/internal/domain"
	"github.com/eliamaps/elia/internal/llm"
)

// MapCatalog is the slice of the geospatial client the tools need
type MapCatalog interface {
	ListLayers(ctx context.Context, serverURL string) ([]domain.LayerSummary, error)
	DescribeLayer(ctx context.Context, serverURL string, layerID int) (*domain.LayerDescriptor, error)
}

// Geoprocessor transforms GeoJSON feature collections
type Geoprocessor interface {
	IsConfigured() bool
	Buffer(ctx context.Context, geojson string, distance float64, units string) (json.RawMessage, error)
}

// PlaceFinder resolves free-text place queries to coordinates
type PlaceFinder interface {
	IsConfigured() bool
	FindPlace(ctx context.Context, query, location string, radius int) (*domain.Place, error)
}

// LayerCache caches layer descriptors between calls
type LayerCache interface {
	Get(ctx context.Context, serverURL string, layerID int) (*domain.LayerDescriptor, error)
	Set(ctx context.Context, serverURL string, desc *domain.LayerDescriptor) error
}

// NewCatalog assembles the fixed tool catalog. cache may be nil, in which
// case layer metadata is fetched fresh on every call.
func NewCatalog(maps MapCatalog, geoprocessor Geoprocessor, places PlaceFinder, cache LayerCache) *Registry {
	r := NewRegistry()

	r.MustRegister(Tool{
		Definition: llm.ToolDefinition{
			Name:        "list_layers",
			Description: "List all spatial layers available on the map server, with their geometry types. Use this to discover what datasets exist before describing or displaying them.",
			Parameters: map[string]llm.ToolParam{
				"server_url": {
					Type:        "string",
					Description: "Base URL of the map server. Leave empty to use the server this conversation is about.",
				},
			},
		},
		Handler: listLayersHandler(maps),
	})

	r.MustRegister(Tool{
		Definition: llm.ToolDefinition{
			Name:        "describe_layer",
			Description: "Fetch the full metadata of one layer: its attribute schema, geometry type and spatial extent.",
			Parameters: map[string]llm.ToolParam{
				"layer_id": {
					Type:        "integer",
					Description: "Numeric id of the layer, as returned by list_layers.",
					Required:    true,
				},
				"server_url": {
					Type:        "string",
					Description: "Base URL of the map server. Leave empty to use the server this conversation is about.",
				},
			},
		},
		Handler: describeLayerHandler(maps, cache),
	})

	r.MustRegister(Tool{
		Definition: llm.ToolDefinition{
			Name:        "find_place",
			Description: "Search for a place by name and return its name, address and coordinates. Useful before placing a marker or answering where something is.",
			Parameters: map[string]llm.ToolParam{
				"query": {
					Type:        "string",
					Description: "Free-text name of the place to search for.",
					Required:    true,
				},
				"location": {
					Type:        "string",
					Description: "Optional lat,lng to bias the search nearby.",
				},
				"radius": {
					Type:        "integer",
					Description: "Optional search radius in meters, used with location.",
				},
			},
		},
		Handler: findPlaceHandler(places),
	})

	r.MustRegister(Tool{
		Definition: llm.ToolDefinition{
			Name:        "add_marker",
			Description: "Place a marker on the user's map at the given coordinates.",
			Parameters: map[string]llm.ToolParam{
				"latitude": {
					Type:        "number",
					Description: "Latitude of the marker in decimal degrees.",
					Required:    true,
				},
				"longitude": {
					Type:        "number",
					Description: "Longitude of the marker in decimal degrees.",
					Required:    true,
				},
				"label": {
					Type:        "string",
					Description: "Optional label shown next to the marker.",
				},
			},
		},
		ClientSide: true,
		Handler:    addMarkerHandler(),
	})

	r.MustRegister(Tool{
		Definition: llm.ToolDefinition{
			Name:        "update_map_data",
			Description: "Replace the spatial data displayed on the user's map with the given GeoJSON FeatureCollection. Pass valid GeoJSON as a string, without wrapping or extra characters.",
			Parameters: map[string]llm.ToolParam{
				"geojson": {
					Type:        "string",
					Description: "A stringified GeoJSON FeatureCollection.",
					Required:    true,
				},
			},
		},
		ClientSide: true,
		Handler:    updateMapDataHandler(),
	})

	r.MustRegister(Tool{
		Definition: llm.ToolDefinition{
			Name:        "buffer_features",
			Description: "Buffer the spatial features currently displayed on the user's map by a distance. The map data is supplied automatically; do not ask the user for it. Returns the buffered GeoJSON in EPSG:4326.",
			Parameters: map[string]llm.ToolParam{
				"distance": {
					Type:        "number",
					Description: "Buffer distance to apply, e.g. 100 for 100 meters.",
					Required:    true,
				},
				"units": {
					Type:        "string",
					Description: "Units of the buffer distance.",
					Required:    true,
					Enum:        []string{"meters", "kilometers", "miles", "feet"},
				},
			},
		},
		ClientSide: true,
		Handler:    bufferFeaturesHandler(geoprocessor),
	})

	return r
}

func listLayersHandler(maps MapCatalog) Handler {
	return func(ctx context.Context, inv Invocation, args map[string]any) (map[string]any, error) {
		serverURL := stringArg(args, "server_url", inv.ServerURL)
		if serverURL == "" {
			return nil, &domain.ToolError{
				Tool:   "list_layers",
				Reason: "no map server configured for this conversation",
				Err:    domain.ErrInvalidToolParameters,
			}
		}

		layers, err := maps.ListLayers(ctx, serverURL)
		if err != nil {
			return nil, &domain.ToolError{
				Tool:   "list_layers",
				Reason: "failed to list layers from the map server",
				Err:    err,
			}
		}

		items := make([]map[string]any, 0, len(layers))
		for _, l := range layers {
			items = append(items, map[string]any{
				"id":            l.ID,
				"name":          l.Name,
				"geometry_type": l.GeometryType,
			})
		}

		return map[string]any{"layers": items}, nil
	}
}

func describeLayerHandler(maps MapCatalog, cache LayerCache) Handler {
	return func(ctx context.Context, inv Invocation, args map[string]any) (map[string]any, error) {
		serverURL := stringArg(args, "server_url", inv.ServerURL)
		if serverURL == "" {
			return nil, &domain.ToolError{
				Tool:   "describe_layer",
				Reason: "no map server configured for this conversation",
				Err:    domain.ErrInvalidToolParameters,
			}
		}

		layerID := intArg(args, "layer_id")

		var desc *domain.LayerDescriptor
		if cache != nil {
			if cached, err := cache.Get(ctx, serverURL, layerID); err == nil && cached != nil {
				desc = cached
			}
		}

		if desc == nil {
			fetched, err := maps.DescribeLayer(ctx, serverURL, layerID)
			if err != nil {
				return nil, &domain.ToolError{
					Tool:   "describe_layer",
					Reason: fmt.Sprintf("failed to describe layer %d", layerID),
					Err:    err,
				}
			}
			desc = fetched

			if cache != nil {
				// Best effort; a cache failure never fails the call.
				_ = cache.Set(ctx, serverURL, desc)
			}
		}

		return map[string]any{
			"id":            desc.ID,
			"name":          desc.Name,
			"description":   describeFields(desc),
			"geometry_type": desc.GeometryType,
			"fields":        fieldList(desc.Fields),
			"extent":        extentMap(desc.Extent),
		}, nil
	}
}

func findPlaceHandler(places PlaceFinder) Handler {
	return func(ctx context.Context, inv Invocation, args map[string]any) (map[string]any, error) {
		if places == nil || !places.IsConfigured() {
			return nil, &domain.ToolError{
				Tool:   "find_place",
				Reason: "place search is not configured on this deployment",
				Err:    domain.ErrUpstreamUnavailable,
			}
		}

		query := stringArg(args, "query", "")
		location := stringArg(args, "location", "")
		radius := intArg(args, "radius")

		place, err := places.FindPlace(ctx, query, location, radius)
		if err != nil {
			return nil, &domain.ToolError{
				Tool:   "find_place",
				Reason: "place search failed",
				Err:    err,
			}
		}
		if place == nil {
			return nil, &domain.ToolError{
				Tool:   "find_place",
				Reason: fmt.Sprintf("no places found for %q", query),
			}
		}

		return map[string]any{
			"name":    place.Name,
			"address": place.Address,
			"lat":     place.Lat,
			"lng":     place.Lng,
		}, nil
	}
}

func addMarkerHandler() Handler {
	return func(ctx context.Context, inv Invocation, args map[string]any) (map[string]any, error) {
		result := map[string]any{
			"latitude":  args["latitude"],
			"longitude": args["longitude"],
			"label":     stringArg(args, "label", ""),
		}
		return result, nil
	}
}

func updateMapDataHandler() Handler {
	return func(ctx context.Context, inv Invocation, args map[string]any) (map[string]any, error) {
		geojson := stringArg(args, "geojson", "")
		if !json.Valid([]byte(geojson)) {
			return nil, &domain.ToolError{
				Tool:   "update_map_data",
				Reason: "geojson is not valid JSON",
				Err:    domain.ErrInvalidToolParameters,
			}
		}
		return map[string]any{"geojson": geojson}, nil
	}
}

func bufferFeaturesHandler(geoprocessor Geoprocessor) Handler {
	return func(ctx context.Context, inv Invocation, args map[string]any) (map[string]any, error) {
		if geoprocessor == nil || !geoprocessor.IsConfigured() {
			return nil, &domain.ToolError{
				Tool:   "buffer_features",
				Reason: "geoprocessing is not configured on this deployment",
				Err:    domain.ErrUpstreamUnavailable,
			}
		}
		if strings.TrimSpace(inv.MapData) == "" {
			return nil, &domain.ToolError{
				Tool:   "buffer_features",
				Reason: "there is no spatial data on the map to buffer",
				Err:    domain.ErrInvalidToolParameters,
			}
		}

		distance, _ := numericValue(args["distance"])
		units := stringArg(args, "units", "meters")

		buffered, err := geoprocessor.Buffer(ctx, inv.MapData, distance, units)
		if err != nil {
			return nil, &domain.ToolError{
				Tool:   "buffer_features",
				Reason: "failed to buffer features",
				Err:    err,
			}
		}

		return map[string]any{"geojson": string(buffered)}, nil
	}
}

func describeFields(desc *domain.LayerDescriptor) string {
	if len(desc.Fields) == 0 {
		return fmt.Sprintf("Layer %q has no defined fields.", desc.Name)
	}

	parts := make([]string, 0, len(desc.Fields))
	for _, f := range desc.Fields {
		s := fmt.Sprintf("%s (%s)", f.Name, f.Type)
		if f.Alias != "" && f.Alias != f.Name {
			s += " - " + f.Alias
		}
		parts = append(parts, s)
	}

	return fmt.Sprintf("Layer %q contains fields: %s.", desc.Name, strings.Join(parts, "; "))
}

func fieldList(fields []domain.LayerField) []map[string]any {
	out := make([]map[string]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, map[string]any{
			"name":     f.Name,
			"type":     f.Type,
			"alias":    f.Alias,
			"nullable": f.Nullable,
		})
	}
	return out
}

func extentMap(extent *domain.Extent) map[string]any {
	if extent == nil {
		return nil
	}
	return map[string]any{
		"xmin": extent.XMin,
		"ymin": extent.YMin,
		"xmax": extent.XMax,
		"ymax": extent.YMax,
		"wkid": extent.WKID,
	}
}

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intArg(args map[string]any, key string) int {
	f, _ := numericValue(args[key])
	return int(f)
}
