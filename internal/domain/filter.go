package domain

import (
	"fmt"
	"strings"
)

// StatusFilter selects which tasks a listing returns.
type StatusFilter string

const (
	// StatusFilterAll returns every task of the room.
	StatusFilterAll StatusFilter = "all"
	// StatusFilterCompleted returns only completed tasks.
	StatusFilterCompleted StatusFilter = "completed"
	// StatusFilterNotCompleted returns every task whose status is not completed.
	StatusFilterNotCompleted StatusFilter = "not_completed"
)

// Listing defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 5
	MaxLimit     = 100
)

// ParseStatusFilter maps a query value onto a StatusFilter. An empty value means all.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch StatusFilter(strings.TrimSpace(s)) {
	case "", StatusFilterAll:
		return StatusFilterAll, nil
	case StatusFilterCompleted:
		return StatusFilterCompleted, nil
	case StatusFilterNotCompleted:
		return StatusFilterNotCompleted, nil
	default:
		return "", fmt.Errorf("%w: unknown status filter %q", ErrValidation, s)
	}
}

// TaskFilter describes one page of a (team, subject) task listing.
type TaskFilter struct {
	TeamID    int64
	SubjectID int64
	Status    StatusFilter
	Page      int
	Limit     int
	// Search, when set, matches title or description case-insensitively.
	Search string
}

// Normalize fills defaults and clamps paging values.
func (f TaskFilter) Normalize() TaskFilter {
	if f.Status == "" {
		f.Status = StatusFilterAll
	}
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

// Offset returns the row offset of the page.
func (f TaskFilter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.Limit
}

// Validate checks the room identifiers and the status filter.
func (f TaskFilter) Validate() error {
	if f.TeamID <= 0 {
		return fmt.Errorf("%w: team: %w", ErrValidation, ErrInvalidID)
	}
	if f.SubjectID <= 0 {
		return fmt.Errorf("%w: subject: %w", ErrValidation, ErrInvalidID)
	}
	switch f.Status {
	case "", StatusFilterAll, StatusFilterCompleted, StatusFilterNotCompleted:
		return nil
	default:
		return fmt.Errorf("%w: unknown status filter %q", ErrValidation, f.Status)
	}
}

// Matches reports whether the task belongs to the listing described by f,
// ignoring paging.
func (f TaskFilter) Matches(t *Task) bool {
	if t.TeamID != f.TeamID || t.SubjectID != f.SubjectID {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(t.Title), q) &&
			!strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	switch f.Status {
	case StatusFilterCompleted:
		return t.Status == TaskStatusCompleted
	case StatusFilterNotCompleted:
		return t.Status != TaskStatusCompleted
	default:
		return true
	}
}

// TaskPage is one page of a listing plus the total number of matching tasks.
type TaskPage struct {
	Tasks []*Task `json:"data"`
	Total int     `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
}
