package ports

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Amund211/assetcache/internal/reporting"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Key     string `json:"key,omitempty"`
	Cause   string `json:"cause"`
}

type acquireResponse struct {
	Success  bool   `json:"success"`
	Key      string `json:"key"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	RefCount int    `json:"refCount"`
}

type releaseResponse struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
}

type statusResponse struct {
	Count         int            `json:"count"`
	TotalMemoryMB float64        `json:"totalMemoryMB"`
	RefCounts     map[string]int `json:"refCounts"`
}

type keyStatusResponse struct {
	Success        bool      `json:"success"`
	Key            string    `json:"key"`
	RefCount       int       `json:"refCount"`
	LastAccessTime time.Time `json:"lastAccessTime"`
	Type           string    `json:"type"`
	Size           int64     `json:"size"`
}

func writeJSONResponse(w http.ResponseWriter, r *http.Request, response any, statusCode int) {
	data, err := json.Marshal(response)
	if err != nil {
		reporting.Report(r.Context(), fmt.Errorf("failed to marshal response: %w", err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"cause":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(data)
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, key string, cause string, statusCode int) {
	writeJSONResponse(w, r, errorResponse{Success: false, Key: key, Cause: cause}, statusCode)
}
