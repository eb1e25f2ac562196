package scheduler

import (
	"sort"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

// Cohort is one course group with its enrolled student set.
type Cohort struct {
	CourseID   string
	GroupID    string
	StudentIDs map[string]struct{}
}

// Size returns the cohort's headcount.
func (c Cohort) Size() int {
	return len(c.StudentIDs)
}

// ConflictGraph derives, from the enrollment snapshot, which courses and
// groups share at least one student. An edge means the pair can never sit
// in the same slot.
type ConflictGraph struct {
	courseStudents map[string]map[string]struct{}
	groupStudents  map[string]map[string]struct{}
	courseGroups   map[string][]string
	groupCourse    map[string]string
}

// BuildConflictGraph folds enrolled rows into per-course and per-group
// student sets. Rows without a group assignment are skipped, never merged
// into a default bucket; the count of skipped rows is returned so the
// caller can log it. An empty courseIDs filter means every course with at
// least one enrollment.
func BuildConflictGraph(enrollments []models.Enrollment, courseIDs []string) (*ConflictGraph, int) {
	var filter map[string]struct{}
	if len(courseIDs) > 0 {
		filter = make(map[string]struct{}, len(courseIDs))
		for _, id := range courseIDs {
			filter[id] = struct{}{}
		}
	}

	g := &ConflictGraph{
		courseStudents: make(map[string]map[string]struct{}),
		groupStudents:  make(map[string]map[string]struct{}),
		courseGroups:   make(map[string][]string),
		groupCourse:    make(map[string]string),
	}

	skipped := 0
	for _, row := range enrollments {
		if row.Status != models.EnrollmentStatusEnrolled {
			continue
		}
		if filter != nil {
			if _, ok := filter[row.CourseID]; !ok {
				continue
			}
		}
		if row.GroupID == nil || *row.GroupID == "" {
			skipped++
			continue
		}
		groupID := *row.GroupID

		if g.courseStudents[row.CourseID] == nil {
			g.courseStudents[row.CourseID] = make(map[string]struct{})
		}
		g.courseStudents[row.CourseID][row.StudentID] = struct{}{}

		if g.groupStudents[groupID] == nil {
			g.groupStudents[groupID] = make(map[string]struct{})
			g.groupCourse[groupID] = row.CourseID
			g.courseGroups[row.CourseID] = append(g.courseGroups[row.CourseID], groupID)
		}
		g.groupStudents[groupID][row.StudentID] = struct{}{}
	}

	for _, groups := range g.courseGroups {
		sort.Strings(groups)
	}

	return g, skipped
}

// Courses returns every course id in the graph, sorted.
func (g *ConflictGraph) Courses() []string {
	ids := make([]string, 0, len(g.courseStudents))
	for id := range g.courseStudents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Groups returns the group ids of a course, sorted.
func (g *ConflictGraph) Groups(courseID string) []string {
	return g.courseGroups[courseID]
}

// CourseStudents returns the distinct enrolled students of a course.
func (g *ConflictGraph) CourseStudents(courseID string) map[string]struct{} {
	return g.courseStudents[courseID]
}

// GroupStudents returns the enrolled students of a group.
func (g *ConflictGraph) GroupStudents(groupID string) map[string]struct{} {
	return g.groupStudents[groupID]
}

// GroupCourse resolves a group to its parent course.
func (g *ConflictGraph) GroupCourse(groupID string) string {
	return g.groupCourse[groupID]
}

// CourseSize returns a course's distinct student headcount.
func (g *ConflictGraph) CourseSize(courseID string) int {
	return len(g.courseStudents[courseID])
}

// CoursesConflict reports whether two courses share at least one student.
func (g *ConflictGraph) CoursesConflict(a, b string) bool {
	if a == b {
		return true
	}
	return intersects(g.courseStudents[a], g.courseStudents[b])
}

// GroupsConflict reports whether two groups share at least one student.
// Conflict is group-level: a course may have several groups, only some of
// which collide with a given rival group.
func (g *ConflictGraph) GroupsConflict(a, b string) bool {
	if a == b {
		return true
	}
	return intersects(g.groupStudents[a], g.groupStudents[b])
}

// ConflictDegree counts how many other courses conflict with the course.
func (g *ConflictGraph) ConflictDegree(courseID string) int {
	degree := 0
	for other := range g.courseStudents {
		if other == courseID {
			continue
		}
		if g.CoursesConflict(courseID, other) {
			degree++
		}
	}
	return degree
}

// Cohort materializes a group into a Cohort value.
func (g *ConflictGraph) Cohort(groupID string) Cohort {
	return Cohort{
		CourseID:   g.groupCourse[groupID],
		GroupID:    groupID,
		StudentIDs: g.groupStudents[groupID],
	}
}

func intersects(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for id := range a {
		if _, ok := b[id]; ok {
			return true
		}
	}
	return false
}
