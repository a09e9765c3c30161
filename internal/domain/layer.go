package domain

// LayerSummary identifies a dataset exposed by a map server
type LayerSummary struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	GeometryType string `json:"geometry_type"`
}

// LayerField describes one attribute of a layer's schema
type LayerField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Alias    string `json:"alias,omitempty"`
	Nullable bool   `json:"nullable"`
}

// Extent is the bounding box of a layer's features
type Extent struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
	WKID int     `json:"wkid,omitempty"`
}

// Place is a geocoded place-search result
type Place struct {
	Name    string  `json:"name"`
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// LayerDescriptor is the full metadata of a map-server layer. It only lives
// inside one chat turn; persisted history captures it as a tool message.
type LayerDescriptor struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	GeometryType string       `json:"geometry_type"`
	Fields       []LayerField `json:"fields"`
	Extent       *Extent      `json:"extent,omitempty"`
}
