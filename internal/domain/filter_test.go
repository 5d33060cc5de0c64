package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusFilter(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]StatusFilter{
		"":              StatusFilterAll,
		"all":           StatusFilterAll,
		"completed":     StatusFilterCompleted,
		"not_completed": StatusFilterNotCompleted,
	} {
		got, err := ParseStatusFilter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStatusFilter("done")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTaskFilterNormalize(t *testing.T) {
	t.Parallel()
	f := TaskFilter{TeamID: 1, SubjectID: 2}.Normalize()
	assert.Equal(t, StatusFilterAll, f.Status)
	assert.Equal(t, DefaultPage, f.Page)
	assert.Equal(t, DefaultLimit, f.Limit)
	assert.Equal(t, 0, f.Offset())

	f = TaskFilter{Page: 3, Limit: 1000}.Normalize()
	assert.Equal(t, MaxLimit, f.Limit)
	assert.Equal(t, 2*MaxLimit, f.Offset())
}

func TestTaskFilterMatches(t *testing.T) {
	t.Parallel()
	done := &Task{TeamID: 1, SubjectID: 2, Status: TaskStatusCompleted}
	open := &Task{TeamID: 1, SubjectID: 2, Status: TaskStatusInProgress}
	other := &Task{TeamID: 1, SubjectID: 3, Status: TaskStatusPending}

	f := TaskFilter{TeamID: 1, SubjectID: 2, Status: StatusFilterCompleted}
	assert.True(t, f.Matches(done))
	assert.False(t, f.Matches(open))

	f.Status = StatusFilterNotCompleted
	assert.True(t, f.Matches(open))
	assert.False(t, f.Matches(done))
	assert.False(t, f.Matches(other))

	f.Status = StatusFilterAll
	assert.True(t, f.Matches(done))
	assert.True(t, f.Matches(open))

	done.Title = "Quarterly Report"
	f.Search = "report"
	assert.True(t, f.Matches(done))
	assert.False(t, f.Matches(open))
}

func TestTaskFilterValidate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, TaskFilter{TeamID: 1, SubjectID: 1}.Validate())
	assert.ErrorIs(t, TaskFilter{SubjectID: 1}.Validate(), ErrInvalidID)
	assert.ErrorIs(t, TaskFilter{TeamID: 1, SubjectID: 1, Status: "x"}.Validate(), ErrValidation)
}
