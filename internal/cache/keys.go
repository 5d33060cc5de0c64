package cache

import (
	"fmt"

	"github.com/phrazzld/taskflow/internal/domain"
)

// ListKey names one page of a (team, subject) listing.
func ListKey(teamID, subjectID int64, status domain.StatusFilter, page, limit int) string {
	return fmt.Sprintf("tasks:%d:%d:%s:page%d:limit%d", subjectID, teamID, statusSegment(status), page, limit)
}

// CountKey names the total of a (team, subject) listing.
func CountKey(teamID, subjectID int64, status domain.StatusFilter) string {
	return fmt.Sprintf("tasks:count:%d:%d:%s", subjectID, teamID, statusSegment(status))
}

// TaskKey names the detail entry of one task.
func TaskKey(id int64) string {
	return fmt.Sprintf("task:%d", id)
}

// RoomPatterns returns the glob patterns covering every listing and count
// key of a (team, subject) pair.
func RoomPatterns(teamID, subjectID int64) []string {
	return []string{
		fmt.Sprintf("tasks:%d:%d:*", subjectID, teamID),
		fmt.Sprintf("tasks:count:%d:%d:*", subjectID, teamID),
	}
}

func statusSegment(status domain.StatusFilter) string {
	if status == "" {
		return string(domain.StatusFilterAll)
	}
	return string(status)
}
