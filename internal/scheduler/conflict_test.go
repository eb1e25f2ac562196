package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

func enrolled(studentID, courseID, groupID string) models.Enrollment {
	row := models.Enrollment{
		StudentID: studentID,
		CourseID:  courseID,
		Status:    models.EnrollmentStatusEnrolled,
	}
	if groupID != "" {
		row.GroupID = &groupID
	}
	return row
}

func day(raw string) time.Time {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBuildConflictGraphGroupLevelConflicts(t *testing.T) {
	graph, skipped := BuildConflictGraph([]models.Enrollment{
		enrolled("alice", "math", "math-a"),
		enrolled("bob", "math", "math-b"),
		enrolled("alice", "physics", "phys-a"),
		enrolled("carol", "physics", "phys-a"),
	}, nil)

	require.Zero(t, skipped)
	assert.True(t, graph.CoursesConflict("math", "physics"))
	assert.True(t, graph.GroupsConflict("math-a", "phys-a"), "alice sits in both")
	assert.False(t, graph.GroupsConflict("math-b", "phys-a"), "conflict is group-level, not course-level")
	assert.Equal(t, 2, graph.CourseSize("math"))
	assert.Equal(t, []string{"math-a", "math-b"}, graph.Groups("math"))
}

func TestBuildConflictGraphSkipsNonEnrolledAndNullGroups(t *testing.T) {
	dropped := enrolled("dave", "math", "math-a")
	dropped.Status = models.EnrollmentStatusDropped

	graph, skipped := BuildConflictGraph([]models.Enrollment{
		enrolled("alice", "math", "math-a"),
		enrolled("bob", "math", ""),
		dropped,
	}, nil)

	assert.Equal(t, 1, skipped, "null group rows are skipped, not merged")
	assert.Equal(t, 1, graph.CourseSize("math"))
}

func TestBuildConflictGraphCourseFilter(t *testing.T) {
	graph, _ := BuildConflictGraph([]models.Enrollment{
		enrolled("alice", "math", "math-a"),
		enrolled("bob", "history", "hist-a"),
	}, []string{"math"})

	assert.Equal(t, []string{"math"}, graph.Courses())
	assert.Zero(t, graph.CourseSize("history"))
}

func TestConflictDegree(t *testing.T) {
	graph, _ := BuildConflictGraph([]models.Enrollment{
		enrolled("alice", "math", "math-a"),
		enrolled("alice", "physics", "phys-a"),
		enrolled("alice", "chemistry", "chem-a"),
		enrolled("zed", "history", "hist-a"),
	}, nil)

	assert.Equal(t, 2, graph.ConflictDegree("math"))
	assert.Zero(t, graph.ConflictDegree("history"))
}
