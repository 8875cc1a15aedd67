package pricing

import (
	"math"
	"time"
)

// DateLayout is the provider's calendar date format.
const DateLayout = "2006-01-02"

const (
	baseMarketPrice = 650.0
	weekendPremium  = 1.12
)

var seasonalMultipliers = map[time.Month]float64{
	time.January:   0.70,
	time.February:  0.70,
	time.March:     0.75,
	time.April:     0.85,
	time.May:       0.95,
	time.June:      1.10,
	time.July:      1.15,
	time.August:    1.15,
	time.September: 1.05,
	time.October:   0.90,
	time.November:  0.75,
	time.December:  0.70,
}

// SeasonalEstimate approximates the market price for date when neighborhood
// data has none. A host price far from the estimate pulls it toward the host.
func SeasonalEstimate(hostPrice *float64, date string) float64 {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return baseMarketPrice
	}

	estimate := baseMarketPrice * seasonalMultipliers[d.Month()]
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		estimate *= weekendPremium
	}

	if hostPrice != nil && *hostPrice > 0 {
		switch p := *hostPrice; {
		case p > estimate*1.3:
			estimate = p * 0.85
		case p < estimate*0.7:
			estimate = p * 1.15
		}
	}
	return roundCents(estimate)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
