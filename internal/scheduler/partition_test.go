package scheduler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

func groupOf(courseID, groupID string, size int, prefix string) []models.Enrollment {
	rows := make([]models.Enrollment, 0, size)
	for i := 0; i < size; i++ {
		rows = append(rows, enrolled(fmt.Sprintf("%s-%03d", prefix, i), courseID, groupID))
	}
	return rows
}

func TestPartitionSeparatesConflictingCourses(t *testing.T) {
	rows := []models.Enrollment{
		enrolled("alice", "math", "math-a"),
		enrolled("alice", "physics", "phys-a"),
		enrolled("bob", "history", "hist-a"),
	}
	graph, _ := BuildConflictGraph(rows, nil)

	part := PartitionSlots(graph, 100, 0)

	colorOf := colorByCourse(part)
	assert.NotEqual(t, colorOf["math"], colorOf["physics"], "shared student forces different colors")
	assert.Len(t, part.Violations, 0)
}

func TestPartitionIsolatedCourseNotStarved(t *testing.T) {
	var rows []models.Enrollment
	rows = append(rows, groupOf("big", "big-a", 80, "big")...)
	rows = append(rows, enrolled("solo", "tiny", "tiny-a"))
	graph, _ := BuildConflictGraph(rows, nil)

	part := PartitionSlots(graph, 100, 0)

	colorOf := colorByCourse(part)
	assert.Equal(t, 0, colorOf["tiny"], "conflict-free course shares the first color")
	assert.Equal(t, 0, colorOf["big"])
}

func TestPartitionGroupSizeExceedsSlotCapacitySplit(t *testing.T) {
	// Two groups of 60 under a 100-seat slot: 120 > 100, so they must land
	// in two different colors, never merged.
	var rows []models.Enrollment
	rows = append(rows, groupOf("stats", "stats-a", 60, "a")...)
	rows = append(rows, groupOf("stats", "stats-b", 60, "b")...)
	graph, _ := BuildConflictGraph(rows, nil)

	part := PartitionSlots(graph, 100, 0)

	require.True(t, part.SplitCourses["stats"])
	placement := map[string]int{}
	for _, color := range part.Colors {
		for _, entry := range color.Entries {
			for _, groupID := range entry.GroupIDs {
				placement[groupID] = color.Index
			}
		}
	}
	require.Contains(t, placement, "stats-a")
	require.Contains(t, placement, "stats-b")
	assert.NotEqual(t, placement["stats-a"], placement["stats-b"])
	for _, color := range part.Colors {
		assert.True(t, color.WithinCapacity)
		assert.LessOrEqual(t, color.StudentCount, 100)
	}
}

func TestPartitionSurfacesImpossibleGroup(t *testing.T) {
	graph, _ := BuildConflictGraph(groupOf("mega", "mega-a", 150, "m"), nil)

	part := PartitionSlots(graph, 100, 0)

	require.Len(t, part.Violations, 1)
	assert.Equal(t, "mega-a", part.Violations[0].GroupID)
	assert.Equal(t, 150, part.Violations[0].StudentCount)
	assert.NotEmpty(t, part.Violations[0].Reason)
}

func TestPartitionHonoursCapacityBuffer(t *testing.T) {
	graph, _ := BuildConflictGraph(groupOf("math", "math-a", 95, "s"), nil)

	// 10% buffer on 100 seats leaves 90 effective; 95 students cannot fit.
	part := PartitionSlots(graph, 100, 10)

	require.Len(t, part.Violations, 1)
}

func TestPartitionDeterministic(t *testing.T) {
	var rows []models.Enrollment
	rows = append(rows, groupOf("a", "a-1", 30, "a")...)
	rows = append(rows, groupOf("b", "b-1", 30, "b")...)
	rows = append(rows, groupOf("c", "c-1", 30, "c")...)
	graph, _ := BuildConflictGraph(rows, nil)

	first := PartitionSlots(graph, 100, 0)
	second := PartitionSlots(graph, 100, 0)

	require.Equal(t, len(first.Colors), len(second.Colors))
	for i := range first.Colors {
		assert.Equal(t, first.Colors[i].Entries, second.Colors[i].Entries)
	}
}

func colorByCourse(part *Partition) map[string]int {
	result := map[string]int{}
	for _, color := range part.Colors {
		for _, entry := range color.Entries {
			result[entry.CourseID] = color.Index
		}
	}
	return result
}
