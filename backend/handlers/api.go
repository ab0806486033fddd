package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/PhilHem/secureone/backend/apperr"
	"github.com/PhilHem/secureone/backend/files"
)

type FilesResponse struct {
	Files        []files.Summary `json:"files"`
	Total        int             `json:"total"`
	Page         int             `json:"page"`
	PerPage      int             `json:"per_page"`
	TotalStorage int64           `json:"total_storage"`
	TotalMB      float64         `json:"total_mb"`
}

// GetFiles returns one page of the caller's files plus totals over all of
// them.
func GetFiles(w http.ResponseWriter, r *http.Request) {
	email, _ := CurrentUser(r)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	list, err := Files.List(r.Context(), email)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": apperr.Message(err)})
		return
	}
	totals := files.Summarize(list)

	start := (page - 1) * perPage
	if start > len(list) {
		start = len(list)
	}
	end := start + perPage
	if end > len(list) {
		end = len(list)
	}

	writeJSON(w, http.StatusOK, FilesResponse{
		Files:        list[start:end],
		Total:        totals.Files,
		Page:         page,
		PerPage:      perPage,
		TotalStorage: totals.Bytes,
		TotalMB:      totals.MB(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Health answers load balancer health checks.
func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
