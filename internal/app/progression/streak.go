// Package progression implements the progression engine: levels, streaks,
// achievements and the coordinator that sequences them per activity.
package progression

import (
	"sort"
	"time"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// civilDay is a calendar date in the reference timezone.
type civilDay struct {
	y int
	m time.Month
	d int
}

func dayOf(t time.Time, loc *time.Location) civilDay {
	y, m, d := t.In(loc).Date()
	return civilDay{y, m, d}
}

// next returns the following calendar day. Built on UTC midnight so DST
// transitions in loc never skip or repeat a date.
func (c civilDay) next() civilDay {
	y, m, d := time.Date(c.y, c.m, c.d+1, 0, 0, 0, 0, time.UTC).Date()
	return civilDay{y, m, d}
}

func (c civilDay) prev() civilDay {
	y, m, d := time.Date(c.y, c.m, c.d-1, 0, 0, 0, 0, time.UTC).Date()
	return civilDay{y, m, d}
}

func (c civilDay) before(o civilDay) bool {
	if c.y != o.y {
		return c.y < o.y
	}
	if c.m != o.m {
		return c.m < o.m
	}
	return c.d < o.d
}

// CalculateStreak derives current and longest consecutive-day streaks.
// Only the calendar date in loc matters. The current streak is intact while
// the latest active date is today or yesterday; otherwise it is 0.
// times need not be sorted.
func CalculateStreak(times []time.Time, now time.Time, loc *time.Location) domain.Streak {
	if len(times) == 0 {
		return domain.Streak{}
	}
	if loc == nil {
		loc = time.UTC
	}

	latest := times[0]
	seen := make(map[civilDay]struct{}, len(times))
	days := make([]civilDay, 0, len(times))
	for _, t := range times {
		if t.After(latest) {
			latest = t
		}
		d := dayOf(t, loc)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].before(days[j]) })

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i-1].next() == days[i] {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	current := 0
	today := dayOf(now, loc)
	anchor := days[len(days)-1]
	if anchor == today || anchor == today.prev() {
		for d := anchor; ; d = d.prev() {
			if _, ok := seen[d]; !ok {
				break
			}
			current++
		}
	}

	last := latest
	return domain.Streak{Current: current, Longest: longest, LastActivity: &last}
}
