package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/inlandnav/euris-resources/internal/domain"
	"github.com/inlandnav/euris-resources/internal/geo"
	"github.com/inlandnav/euris-resources/internal/reporting"
)

const (
	wgs84        = 4326
	webMercator  = 3857
	queryPathFmt = "/api/arcgis/rest/services/%s/0/query"
)

// layer describes how one source kind is queried and fetched.
type layer struct {
	service    string
	idField    string
	nameField  string
	spatialRef int

	detailPath  string
	detailParam string
}

var layers = map[domain.SourceKind]layer{
	domain.KindLock: {
		service:     "locks",
		idField:     "LOCODE",
		nameField:   "OBJNAM",
		spatialRef:  wgs84,
		detailPath:  "/visuris/api/Locks_v2/GetLock",
		detailParam: "isrs",
	},
	domain.KindBridge: {
		service:     "bridges",
		idField:     "LOCODE",
		nameField:   "OBJNAM",
		spatialRef:  wgs84,
		detailPath:  "/visuris/api/Bridges/GetBridge",
		detailParam: "isrs",
	},
	domain.KindBerth: {
		service:     "berths",
		idField:     "LOCODE",
		nameField:   "OBJNAM",
		spatialRef:  webMercator,
		detailPath:  "/visuris/api/Berths_v2/GetBerth",
		detailParam: "isrs",
	},
	domain.KindNotice: {
		service:     "ntslocations",
		idField:     "NTS_ID",
		nameField:   "TITLE",
		spatialRef:  webMercator,
		detailPath:  "/visuris/api/NtsNotices/GetNotice",
		detailParam: "id",
	},
}

func layerFor(kind domain.SourceKind) (layer, error) {
	l, ok := layers[kind]
	if !ok {
		return layer{}, fmt.Errorf("%w: no catalog layer for %q", domain.ErrNotFound, kind)
	}
	return l, nil
}

type arcgisResponse struct {
	Features []struct {
		Attributes map[string]any `json:"attributes"`
		Geometry   *struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"geometry"`
	} `json:"features"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type envelope struct {
	XMin             float64          `json:"xmin"`
	YMin             float64          `json:"ymin"`
	XMax             float64          `json:"xmax"`
	YMax             float64          `json:"ymax"`
	SpatialReference spatialReference `json:"spatialReference"`
}

type spatialReference struct {
	WKID int `json:"wkid"`
}

func queryParams(l layer, bbox domain.BBox) (url.Values, error) {
	if l.spatialRef == webMercator {
		bbox = geo.ProjectBBox(bbox)
	}

	geometry, err := json.Marshal(envelope{
		XMin:             bbox.MinLon,
		YMin:             bbox.MinLat,
		XMax:             bbox.MaxLon,
		YMax:             bbox.MaxLat,
		SpatialReference: spatialReference{WKID: l.spatialRef},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return url.Values{
		"f":              {"json"},
		"returnGeometry": {"true"},
		"outFields":      {"*"},
		"spatialRel":     {"esriSpatialRelIntersects"},
		"geometryType":   {"esriGeometryEnvelope"},
		"inSR":           {strconv.Itoa(l.spatialRef)},
		"outSR":          {strconv.Itoa(wgs84)},
		"geometry":       {string(geometry)},
	}, nil
}

// List returns the entities of kind intersecting bbox.
func (c *Client) List(ctx context.Context, kind domain.SourceKind, bbox domain.BBox) ([]domain.Entity, error) {
	l, err := layerFor(kind)
	if err != nil {
		return nil, err
	}

	params, err := queryParams(l, bbox)
	if err != nil {
		return nil, err
	}

	data, err := c.get(ctx, fmt.Sprintf(queryPathFmt, l.service), params)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	entities, err := entitiesFromArcgisResponse(kind, l, data)
	if err != nil {
		err := fmt.Errorf("failed to list %s: %w", kind, err)
		reporting.Report(ctx, err, map[string]string{
			"data": string(data),
		})
		return nil, err
	}
	return entities, nil
}

func entitiesFromArcgisResponse(kind domain.SourceKind, l layer, data []byte) ([]domain.Entity, error) {
	var response arcgisResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to parse arcgis response: %w", err)
	}

	// The feature service reports failures in the body of a 200 response
	if response.Error != nil {
		return nil, fmt.Errorf("%w: arcgis error %d: %s", domain.ErrUpstreamUnavailable, response.Error.Code, response.Error.Message)
	}

	entities := make([]domain.Entity, 0, len(response.Features))
	for _, feature := range response.Features {
		id := attributeString(feature.Attributes, l.idField)
		if id == "" || feature.Geometry == nil {
			continue
		}
		entities = append(entities, domain.Entity{
			ID:    id,
			Name:  attributeString(feature.Attributes, l.nameField),
			Point: domain.Point{Lon: feature.Geometry.X, Lat: feature.Geometry.Y},
			Kind:  kind,
		})
	}
	return entities, nil
}

func attributeString(attributes map[string]any, field string) string {
	switch value := attributes[field].(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(value)
	}
}
