package pricing

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/mairble/mairble-backend-go/internal/domain"
)

// Forecast splits the nights of a range into confirmed revenue (booked, at
// ADR) and potential revenue (available, at the host price). Nights without
// a price are skipped; blocked nights are only counted.
func Forecast(nights []domain.Night, dateFrom, dateTo string) domain.Forecast {
	f := domain.Forecast{DateFrom: dateFrom, DateTo: dateTo}

	for _, n := range nights {
		price := deref(n.Price)
		if price == 0 {
			continue
		}
		switch {
		case n.IsBooked():
			rate := deref(n.ADR)
			if rate <= 0 {
				rate = price
			}
			f.BookedRevenue += rate
			f.BookedNights++
		case n.IsUnbookable():
			f.UnbookableNights++
		default:
			rate := deref(n.UserPrice)
			if rate <= 0 {
				rate = price
			}
			f.PotentialRevenue += rate
			f.AvailableNights++
		}
	}

	f.TotalNights = f.BookedNights + f.AvailableNights + f.UnbookableNights
	f.TotalPotential = f.BookedRevenue + f.PotentialRevenue
	if f.BookedNights > 0 {
		f.AvgBookedRate = f.BookedRevenue / float64(f.BookedNights)
	}
	if f.AvailableNights > 0 {
		f.AvgAvailableRate = f.PotentialRevenue / float64(f.AvailableNights)
	}
	f.OccupancyPercent = float64(f.BookedNights) / float64(max(f.TotalNights-f.UnbookableNights, 1)) * 100

	f.Summary = formatForecast(f)
	return f
}

func formatForecast(f domain.Forecast) string {
	return fmt.Sprintf(`Revenue Forecast (%s to %s):

CONFIRMED REVENUE (Booked): $%s
- %d nights @ $%.0f/night average

POTENTIAL REVENUE (Available): $%s
- %d nights @ $%.0f/night average

TOTAL POTENTIAL: $%s
- %d total nights (%d unbookable)
- %.0f%% occupancy rate`,
		f.DateFrom, f.DateTo,
		dollars(f.BookedRevenue), f.BookedNights, f.AvgBookedRate,
		dollars(f.PotentialRevenue), f.AvailableNights, f.AvgAvailableRate,
		dollars(f.TotalPotential), f.TotalNights, f.UnbookableNights,
		f.OccupancyPercent,
	)
}

func dollars(v float64) string {
	return humanize.Comma(int64(math.Round(v)))
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
