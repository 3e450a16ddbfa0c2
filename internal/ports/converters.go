package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/inlandnav/euris-resources/internal/domain"
	"github.com/inlandnav/euris-resources/internal/reporting"
)

type pointGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type summaryProperties struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type summaryResponse struct {
	Geometry   pointGeometry     `json:"geometry"`
	Properties summaryProperties `json:"properties"`
}

type notePosition struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

type noteProperties struct {
	ReadOnly bool `json:"readOnly"`
}

type noteResponse struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Position    notePosition   `json:"position"`
	Group       string         `json:"group"`
	URL         string         `json:"url"`
	MimeType    string         `json:"mimeType"`
	Timestamp   time.Time      `json:"timestamp"`
	Properties  noteProperties `json:"properties"`
}

type resourcesResponse struct {
	Success   bool           `json:"success"`
	Resources map[string]any `json:"resources"`
	Partial   bool           `json:"partial"`
}

type resourceResponse struct {
	Success  bool         `json:"success"`
	Resource noteResponse `json:"resource"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Cause   string `json:"cause"`
}

func summaryToResponse(summary domain.Summary) summaryResponse {
	return summaryResponse{
		Geometry: pointGeometry{
			Type:        "Point",
			Coordinates: [2]float64{summary.Point.Lon, summary.Point.Lat},
		},
		Properties: summaryProperties{
			Name:        summary.Name,
			Description: summary.Description,
		},
	}
}

func noteToResponse(note domain.Note) noteResponse {
	return noteResponse{
		Name:        note.Name,
		Description: note.Description,
		Position: notePosition{
			Longitude: note.Position.Lon,
			Latitude:  note.Position.Lat,
		},
		Group:      note.Group,
		URL:        note.URL,
		MimeType:   note.MimeType,
		Timestamp:  note.Timestamp,
		Properties: noteProperties{ReadOnly: note.ReadOnly},
	}
}

func resourceToResponse(resource domain.Resource) (any, error) {
	switch r := resource.(type) {
	case domain.Summary:
		return summaryToResponse(r), nil
	case domain.Note:
		return noteToResponse(r), nil
	default:
		return nil, fmt.Errorf("unknown resource type %T", resource)
	}
}

func ResourcesToResponseData(resources domain.ResourceMap, partial bool) ([]byte, error) {
	converted := make(map[string]any, len(resources))
	for key, resource := range resources {
		value, err := resourceToResponse(resource)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s: %w", key, err)
		}
		converted[key] = value
	}

	data, err := json.Marshal(resourcesResponse{
		Success:   true,
		Resources: converted,
		Partial:   partial,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resources response: %w", err)
	}
	return data, nil
}

func NoteToResponseData(note domain.Note) ([]byte, error) {
	data, err := json.Marshal(resourceResponse{
		Success:  true,
		Resource: noteToResponse(note),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource response: %w", err)
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(data)
}

func writeError(ctx context.Context, w http.ResponseWriter, cause string, statusCode int) {
	data, err := json.Marshal(errorResponse{Success: false, Cause: cause})
	if err != nil {
		reporting.Report(ctx, fmt.Errorf("failed to marshal error response: %w", err))
		writeJSON(w, http.StatusInternalServerError, []byte(`{"success":false,"cause":"internal server error"}`))
		return
	}
	writeJSON(w, statusCode, data)
}
