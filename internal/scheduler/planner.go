package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

// Suggestion is the verdict for one (date, slot) probed by CheckFit.
type Suggestion struct {
	Date      time.Time        `json:"date"`
	SlotLabel models.SlotLabel `json:"slot_label"`
	Suggested bool             `json:"suggested"`
	Reason    string           `json:"reason"`
}

// CheckFitResult answers whether candidate groups fit the requested slot
// and where else they could go. Best is nil when nothing in the window
// works; callers must not assume a suggestion exists.
type CheckFitResult struct {
	RequestedSlot models.SlotLabel `json:"requested_slot"`
	Conflicts     []string         `json:"conflicts"`
	Best          *Suggestion      `json:"best,omitempty"`
	Suggestions   []Suggestion     `json:"suggestions"`
}

// CheckFit probes an already-committed calendar for room to insert one
// more cohort, without re-running the full partition pass. Capacity is the
// candidate location's own room pool only; capacity elsewhere never
// offsets a local shortfall.
func CheckFit(
	existing []models.ExamWithStudents,
	rooms []models.Room,
	candidateStudents map[string]struct{},
	candidateDate time.Time,
	preferred models.SlotLabel,
	cons Constraints,
	windowDays int,
) *CheckFitResult {
	cons = cons.Normalized()
	if windowDays <= 0 {
		windowDays = 14
	}

	// Friday never hosts an evening sitting: substitute Morning before
	// searching rather than failing the request outright.
	if preferred == models.SlotEvening && cons.ExcludeFridayEvening && candidateDate.Weekday() == time.Friday {
		preferred = models.SlotMorning
	}

	totalCapacity := 0
	for _, room := range rooms {
		totalCapacity += room.Capacity
	}
	totalCapacity = cons.EffectiveCapacity(totalCapacity)

	slotStudents := make(map[string]map[string]struct{})
	slotHeadcount := make(map[string]int)
	earliest, latest := candidateDate, candidateDate
	for _, exam := range existing {
		key := slotUsageKey(exam.ExamDate, exam.SlotLabel)
		if slotStudents[key] == nil {
			slotStudents[key] = make(map[string]struct{})
		}
		for _, studentID := range exam.StudentIDs {
			slotStudents[key][studentID] = struct{}{}
		}
		slotHeadcount[key] += len(exam.StudentIDs)
		if exam.ExamDate.Before(earliest) {
			earliest = exam.ExamDate
		}
		if exam.ExamDate.After(latest) {
			latest = exam.ExamDate
		}
	}

	end := candidateDate.AddDate(0, 0, windowDays)
	if latest.Before(end) {
		end = latest
	}
	if end.Before(candidateDate) {
		end = candidateDate
	}

	result := &CheckFitResult{RequestedSlot: preferred}
	headcount := len(candidateStudents)

	for date := earliest; !date.After(end); date = date.AddDate(0, 0, 1) {
		if excluded, _ := cons.DayExcluded(date); excluded {
			continue
		}
		labels := cons.LegalSlots(date)
		if DateKey(date) == DateKey(candidateDate) {
			labels = promoteLabel(labels, preferred)
		}
		for _, label := range labels {
			key := slotUsageKey(date, label)
			conflicts := intersection(candidateStudents, slotStudents[key])

			suggestion := Suggestion{Date: date, SlotLabel: label}
			switch {
			case len(conflicts) > 0:
				suggestion.Reason = fmt.Sprintf("%d candidate student(s) already sit in this slot", len(conflicts))
			case slotHeadcount[key]+headcount > totalCapacity:
				suggestion.Reason = fmt.Sprintf("slot holds %d of %d seats; %d more will not fit", slotHeadcount[key], totalCapacity, headcount)
			default:
				suggestion.Suggested = true
				suggestion.Reason = "slot is available"
			}
			result.Suggestions = append(result.Suggestions, suggestion)

			if DateKey(date) == DateKey(candidateDate) && label == preferred {
				result.Conflicts = conflicts
			}
		}
	}

	result.Best = pickBest(result.Suggestions, candidateDate, preferred)
	return result
}

// pickBest prefers the requested date, then the preferred slot within it,
// then the earliest available date.
func pickBest(suggestions []Suggestion, candidateDate time.Time, preferred models.SlotLabel) *Suggestion {
	var best *Suggestion
	for i := range suggestions {
		s := &suggestions[i]
		if !s.Suggested {
			continue
		}
		if best == nil {
			best = s
			continue
		}
		if better(s, best, candidateDate, preferred) {
			best = s
		}
	}
	return best
}

func better(a, b *Suggestion, candidateDate time.Time, preferred models.SlotLabel) bool {
	aSame := DateKey(a.Date) == DateKey(candidateDate)
	bSame := DateKey(b.Date) == DateKey(candidateDate)
	if aSame != bSame {
		return aSame
	}
	if aSame && bSame {
		return a.SlotLabel == preferred && b.SlotLabel != preferred
	}
	return a.Date.Before(b.Date)
}

func promoteLabel(labels []models.SlotLabel, first models.SlotLabel) []models.SlotLabel {
	ordered := make([]models.SlotLabel, 0, len(labels))
	for _, label := range labels {
		if label == first {
			ordered = append(ordered, label)
		}
	}
	for _, label := range labels {
		if label != first {
			ordered = append(ordered, label)
		}
	}
	return ordered
}

func intersection(a, b map[string]struct{}) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	var shared []string
	for id := range a {
		if _, ok := b[id]; ok {
			shared = append(shared, id)
		}
	}
	sort.Strings(shared)
	return shared
}
