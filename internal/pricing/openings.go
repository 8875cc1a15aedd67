package pricing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mairble/mairble-backend-go/internal/domain"
)

// FindOpenings groups the bookable nights into consecutive date ranges.
// Dates that do not parse are ignored and duplicates count once.
func FindOpenings(listingID string, nights []domain.Night, windowDays int) domain.Openings {
	out := domain.Openings{ListingID: listingID, WindowDays: windowDays, Ranges: []domain.DateRange{}}

	seen := make(map[string]struct{}, len(nights))
	dates := make([]time.Time, 0, len(nights))
	for _, n := range nights {
		switch {
		case n.IsBooked():
			out.Booked++
			continue
		case n.IsUnbookable():
			out.Unbookable++
			continue
		}
		d, err := time.Parse(DateLayout, n.Date)
		if err != nil {
			continue
		}
		if _, dup := seen[n.Date]; dup {
			continue
		}
		seen[n.Date] = struct{}{}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for i := 0; i < len(dates); {
		j := i
		for j+1 < len(dates) && dates[j+1].Sub(dates[j]) == 24*time.Hour {
			j++
		}
		r := domain.DateRange{
			Start:  dates[i].Format(DateLayout),
			End:    dates[j].Format(DateLayout),
			Nights: j - i + 1,
		}
		out.Ranges = append(out.Ranges, r)
		out.TotalNights += r.Nights
		i = j + 1
	}

	out.Summary = FormatOpenings(out.Ranges, windowDays)
	return out
}

// FormatOpenings renders ranges the way the agent reports them, e.g.
// "Available: 2025-07-01 to 2025-07-03 (3 nights), 2025-07-05 (1 night). Total: 2 gaps, 4 nights."
func FormatOpenings(ranges []domain.DateRange, windowDays int) string {
	if len(ranges) == 0 {
		return fmt.Sprintf("No available dates found in the next %d days.", windowDays)
	}

	parts := make([]string, 0, len(ranges))
	total := 0
	for _, r := range ranges {
		total += r.Nights
		if r.Start == r.End {
			parts = append(parts, fmt.Sprintf("%s (1 night)", r.Start))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s to %s (%d nights)", r.Start, r.End, r.Nights))
	}
	return fmt.Sprintf("Available: %s. Total: %d gaps, %d nights.", strings.Join(parts, ", "), len(ranges), total)
}
