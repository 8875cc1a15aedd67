package domain

import "encoding/json"

// ============================================================
// Provider payloads
// ============================================================

// Night is one entry of the provider's listing_prices "data" array.
// Reason is kept raw: its shape varies per listing and only a few
// listing_info fields are ever read.
type Night struct {
	Date          string          `json:"date"`
	Price         *float64        `json:"price"`
	UserPrice     *float64        `json:"user_price"`
	ADR           *float64        `json:"ADR"`
	BookingStatus string          `json:"booking_status"`
	Unbookable    float64         `json:"unbookable"`
	DemandDesc    string          `json:"demand_desc"`
	Reason        json.RawMessage `json:"reason,omitempty"`
}

// IsBooked reports whether the booking status is any "booked" variant
// ("Booked", "Booked (Check-In)", ...).
func (n Night) IsBooked() bool {
	return containsFold(n.BookingStatus, "booked")
}

// IsUnbookable reports whether the host blocked the night.
func (n Night) IsUnbookable() bool {
	return n.Unbookable != 0
}

// HostPrice is the host's own price: user_price when set, else price.
func (n Night) HostPrice() *float64 {
	if n.UserPrice != nil && *n.UserPrice != 0 {
		return n.UserPrice
	}
	return n.Price
}

// PriceQuery selects a listing and date range on the provider.
type PriceQuery struct {
	ListingID string
	PMS       string
	DateFrom  string
	DateTo    string
}

// ============================================================
// API request / response types
// ============================================================

// Market sources reported on NightData.
const (
	MarketSourceProvider = "pricelabs"
	MarketSourceEstimate = "seasonal_estimate"
)

// NightData is one unbooked night enriched with market context.
type NightData struct {
	Date           string   `json:"date"`
	YourPrice      *float64 `json:"your_price"`
	MarketAvgPrice *float64 `json:"market_avg_price"`
	Occupancy      *float64 `json:"occupancy"`
	Event          *string  `json:"event"`
	DayOfWeek      *string  `json:"day_of_week"`
	LeadTime       *int     `json:"lead_time"`
	MarketSource   string   `json:"market_source,omitempty"`
}

// PricingResult is the per-night recommendation returned by analyze.
type PricingResult struct {
	Date           string   `json:"date"`
	SuggestedPrice *float64 `json:"suggested_price"`
	Confidence     *int     `json:"confidence"`
	Explanation    *string  `json:"explanation"`
	InsightTag     *string  `json:"insight_tag"`
}

// FetchRequest is the body of POST /fetch-pricing-data.
type FetchRequest struct {
	DateFrom  string `json:"date_from,omitempty"` // yyyy-mm-dd
	DateTo    string `json:"date_to,omitempty"`
	ListingID string `json:"listing_id,omitempty"`
	PMS       string `json:"pms,omitempty"`
	Bedrooms  string `json:"bedrooms,omitempty"`
}

// AnalyzeRequest is the body of POST /analyze-pricing.
type AnalyzeRequest struct {
	Nights          []NightData      `json:"nights"`
	Model           string           `json:"model,omitempty"`
	PropertyContext *PropertyContext `json:"property_context,omitempty"`
}

// ForecastRequest is the body of POST /revenue-forecast.
type ForecastRequest struct {
	ListingID string `json:"listing_id,omitempty"`
	PMS       string `json:"pms,omitempty"`
	DateFrom  string `json:"date_from"`
	DateTo    string `json:"date_to"`
}

// Forecast splits a date range into confirmed and potential revenue.
type Forecast struct {
	DateFrom         string  `json:"date_from"`
	DateTo           string  `json:"date_to"`
	BookedRevenue    float64 `json:"booked_revenue"`
	PotentialRevenue float64 `json:"potential_revenue"`
	TotalPotential   float64 `json:"total_potential"`
	BookedNights     int     `json:"booked_nights"`
	AvailableNights  int     `json:"available_nights"`
	UnbookableNights int     `json:"unbookable_nights"`
	TotalNights      int     `json:"total_nights"`
	AvgBookedRate    float64 `json:"avg_booked_rate"`
	AvgAvailableRate float64 `json:"avg_available_rate"`
	OccupancyPercent float64 `json:"occupancy_percent"`
	Summary          string  `json:"summary"`
}

// DateRange is a run of consecutive bookable nights, both ends inclusive.
type DateRange struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Nights int    `json:"nights"`
}

// Openings is the availability answer for a listing.
type Openings struct {
	ListingID   string      `json:"listing_id"`
	WindowDays  int         `json:"window_days"`
	Ranges      []DateRange `json:"ranges"`
	TotalNights int         `json:"total_nights"`
	Booked      int         `json:"booked"`
	Unbookable  int         `json:"unbookable"`
	Summary     string      `json:"summary"`
}
