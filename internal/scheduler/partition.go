package scheduler

import (
	"fmt"
	"sort"
)

// ColorEntry lists the groups of one course assigned to a color.
type ColorEntry struct {
	CourseID     string
	GroupIDs     []string
	StudentCount int
}

// Color is a virtual slot produced by the partitioner: a conflict-free,
// capacity-bounded set of course groups that can sit at the same time.
type Color struct {
	Index          int
	Entries        []ColorEntry
	StudentCount   int
	WithinCapacity bool

	groups map[string]struct{}
}

// CapacityViolation surfaces a group that can never fit a slot, e.g. a
// single group larger than the location's whole seat pool. The caller
// decides how to handle it; the partitioner never discards it silently.
type CapacityViolation struct {
	CourseID     string
	GroupID      string
	StudentCount int
	Reason       string
}

// Partition is the ordered sequence of virtual slots plus everything that
// could not be bucketed.
type Partition struct {
	Colors       []*Color
	Violations   []CapacityViolation
	SplitCourses map[string]bool
}

// PartitionSlots buckets course groups into colors so that no two
// conflicting groups share a color and no color exceeds the effective seat
// capacity. Greedy, deterministic, single pass: courses are taken whole
// when possible and split group-by-group (best-fit) when not.
func PartitionSlots(g *ConflictGraph, maxStudentsPerSlot, capacityBufferPercent int) *Partition {
	effective := maxStudentsPerSlot
	if capacityBufferPercent > 0 {
		effective = maxStudentsPerSlot - maxStudentsPerSlot*capacityBufferPercent/100
	}

	part := &Partition{SplitCourses: make(map[string]bool)}

	courses := g.Courses()
	sort.SliceStable(courses, func(i, j int) bool {
		si, sj := g.CourseSize(courses[i]), g.CourseSize(courses[j])
		if si != sj {
			return si > sj
		}
		di, dj := g.ConflictDegree(courses[i]), g.ConflictDegree(courses[j])
		if di != dj {
			return di > dj
		}
		return courses[i] < courses[j]
	})

	for _, courseID := range courses {
		if part.placeWholeCourse(g, courseID, effective) {
			continue
		}
		part.placeSplitCourse(g, courseID, effective)
	}

	for _, color := range part.Colors {
		color.WithinCapacity = color.StudentCount <= effective
	}
	return part
}

// placeWholeCourse tries the lowest-index color that is conflict-free for
// the course and has room for all its groups together. Available colors
// are computed per course on the fly, so isolated courses are never
// starved by earlier placements.
func (p *Partition) placeWholeCourse(g *ConflictGraph, courseID string, effective int) bool {
	total := g.CourseSize(courseID)
	if total > effective {
		return false
	}
	for _, color := range p.Colors {
		if color.StudentCount+total > effective {
			continue
		}
		if color.conflictsWithCourse(g, courseID) {
			continue
		}
		color.add(g, courseID, g.Groups(courseID))
		return true
	}
	color := p.newColor()
	color.add(g, courseID, g.Groups(courseID))
	return true
}

// placeSplitCourse falls back to group-level placement: groups sorted by
// descending size, each dropped into the conflict-free color with the
// smallest leftover capacity that still fits it (best-fit, to limit
// fragmentation).
func (p *Partition) placeSplitCourse(g *ConflictGraph, courseID string, effective int) {
	groups := append([]string(nil), g.Groups(courseID)...)
	sort.SliceStable(groups, func(i, j int) bool {
		si, sj := len(g.GroupStudents(groups[i])), len(g.GroupStudents(groups[j]))
		if si != sj {
			return si > sj
		}
		return groups[i] < groups[j]
	})

	placedAny := false
	for _, groupID := range groups {
		size := len(g.GroupStudents(groupID))
		if size > effective {
			p.Violations = append(p.Violations, CapacityViolation{
				CourseID:     courseID,
				GroupID:      groupID,
				StudentCount: size,
				Reason:       fmt.Sprintf("group of %d students exceeds slot capacity of %d seats", size, effective),
			})
			continue
		}

		var best *Color
		for _, color := range p.Colors {
			leftover := effective - color.StudentCount
			if leftover < size {
				continue
			}
			if color.conflictsWithGroup(g, groupID) {
				continue
			}
			if best == nil || effective-best.StudentCount > leftover {
				best = color
			}
		}
		if best == nil {
			best = p.newColor()
		}
		best.add(g, courseID, []string{groupID})
		placedAny = true
	}
	if placedAny && len(groups) > 1 {
		p.SplitCourses[courseID] = true
	}
}

func (p *Partition) newColor() *Color {
	color := &Color{
		Index:  len(p.Colors),
		groups: make(map[string]struct{}),
	}
	p.Colors = append(p.Colors, color)
	return color
}

func (c *Color) add(g *ConflictGraph, courseID string, groupIDs []string) {
	count := 0
	for _, groupID := range groupIDs {
		c.groups[groupID] = struct{}{}
		count += len(g.GroupStudents(groupID))
	}
	for i := range c.Entries {
		if c.Entries[i].CourseID == courseID {
			c.Entries[i].GroupIDs = append(c.Entries[i].GroupIDs, groupIDs...)
			c.Entries[i].StudentCount += count
			c.StudentCount += count
			return
		}
	}
	c.Entries = append(c.Entries, ColorEntry{
		CourseID:     courseID,
		GroupIDs:     append([]string(nil), groupIDs...),
		StudentCount: count,
	})
	c.StudentCount += count
}

func (c *Color) conflictsWithCourse(g *ConflictGraph, courseID string) bool {
	for _, entry := range c.Entries {
		if g.CoursesConflict(entry.CourseID, courseID) {
			return true
		}
	}
	return false
}

func (c *Color) conflictsWithGroup(g *ConflictGraph, groupID string) bool {
	for colored := range c.groups {
		if g.GroupsConflict(colored, groupID) {
			return true
		}
	}
	return false
}

// GroupIDs returns every group in the color, sorted.
func (c *Color) GroupIDs() []string {
	ids := make([]string, 0, len(c.groups))
	for id := range c.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
