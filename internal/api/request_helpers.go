package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/taskflow/internal/domain"
)

// getPathID extracts a positive integer ID from the URL path parameters.
func getPathID(r *http.Request, paramName string) (int64, error) {
	raw := chi.URLParam(r, paramName)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrValidation, paramName)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s: %w", domain.ErrValidation, paramName, domain.ErrInvalidID)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrValidation, name)
	}
	return n, nil
}

// parseTaskFilter reads subjectId, teamId, status, search, page and limit.
func parseTaskFilter(r *http.Request) (domain.TaskFilter, error) {
	var f domain.TaskFilter

	teamID, err := queryInt(r, "teamId")
	if err != nil {
		return f, err
	}
	subjectID, err := queryInt(r, "subjectId")
	if err != nil {
		return f, err
	}
	status, err := domain.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		return f, err
	}
	page, err := queryInt(r, "page")
	if err != nil {
		return f, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return f, err
	}

	f = domain.TaskFilter{
		TeamID:    int64(teamID),
		SubjectID: int64(subjectID),
		Status:    status,
		Search:    strings.TrimSpace(r.URL.Query().Get("search")),
		Page:      page,
		Limit:     limit,
	}
	return f.Normalize(), f.Validate()
}
