package pricing

import "github.com/mairble/mairble-backend-go/internal/domain"

// DemoNights is the fixed sample served when the provider cannot answer and
// demo fallback is enabled.
func DemoNights() []domain.NightData {
	type row struct {
		date, day, event   string
		price, market, occ float64
	}
	rows := []row{
		{"2025-06-22", "Sunday", "Low Demand", 848.0, 533.0, 28.5},
		{"2025-06-23", "Monday", "Low Demand", 757.0, 500.0, 25.2},
		{"2025-06-24", "Tuesday", "Low Demand", 771.0, 500.0, 22.8},
		{"2025-06-25", "Wednesday", "Low Demand", 792.0, 505.0, 31.5},
		{"2025-06-29", "Sunday", "Normal Demand", 880.0, 550.5, 35.2},
	}

	out := make([]domain.NightData, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.NightData{
			Date:           r.date,
			YourPrice:      &r.price,
			MarketAvgPrice: &r.market,
			Occupancy:      &r.occ,
			Event:          &r.event,
			DayOfWeek:      &r.day,
		})
	}
	return out
}
