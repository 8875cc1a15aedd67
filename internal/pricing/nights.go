package pricing

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mairble/mairble-backend-go/internal/domain"
)

// Enrich turns a provider night into NightData with market context.
// nb may be empty; the seasonal estimate then stands in for the market.
func Enrich(night domain.Night, nb json.RawMessage, bedrooms string) domain.NightData {
	out := domain.NightData{
		Date:      night.Date,
		YourPrice: night.HostPrice(),
		LeadTime:  LeadTime(night.Reason),
	}

	if v, ok := MarketPrice(nb, night.Date, bedrooms); ok {
		out.MarketAvgPrice = &v
		out.MarketSource = domain.MarketSourceProvider
	} else {
		est := SeasonalEstimate(out.YourPrice, night.Date)
		out.MarketAvgPrice = &est
		out.MarketSource = domain.MarketSourceEstimate
	}

	if v, ok := Occupancy(nb, night.Date, bedrooms); ok {
		out.Occupancy = &v
	}
	if night.DemandDesc != "" {
		event := night.DemandDesc
		out.Event = &event
	}
	if d, err := time.Parse(DateLayout, night.Date); err == nil {
		day := d.Weekday().String()
		out.DayOfWeek = &day
	}
	return out
}

// LeadTime reads the booking lead time from a night's reason.listing_info.
// Last year's booking gap is used first; any explicit numeric "lead" field
// overrides it.
func LeadTime(reason json.RawMessage) *int {
	if len(reason) == 0 {
		return nil
	}
	info := gjson.GetBytes(reason, "listing_info")
	if !info.IsObject() {
		return nil
	}

	var lead *int
	booked := info.Get("booked_date_STLY").String()
	stay := info.Get("date_STLY").String()
	if booked != "" && stay != "" && booked != "-1" {
		b, errB := time.Parse(DateLayout, booked)
		s, errS := time.Parse(DateLayout, stay)
		if errB == nil && errS == nil {
			if days := int(s.Sub(b).Hours() / 24); days > 0 {
				lead = &days
			}
		}
	}

	fields := info.Map()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fields[k]
		if strings.Contains(strings.ToLower(k), "lead") && v.Type == gjson.Number && v.Float() > 0 {
			n := int(v.Float())
			lead = &n
			break
		}
	}
	return lead
}

// Bookable reports whether a night is neither booked nor blocked.
func Bookable(n domain.Night) bool {
	return !n.IsBooked() && !n.IsUnbookable()
}

// Priced reports whether NightData carries a usable host price and is not
// flagged unavailable by the provider's demand description.
func Priced(n domain.NightData) bool {
	if n.YourPrice == nil || *n.YourPrice == -1 {
		return false
	}
	return n.Event == nil || !strings.EqualFold(*n.Event, "unavailable")
}

// AvailableNights enriches the bookable nights and keeps the priced ones,
// at most limit of them (limit <= 0 keeps all).
func AvailableNights(nights []domain.Night, nb json.RawMessage, bedrooms string, limit int) []domain.NightData {
	out := make([]domain.NightData, 0, len(nights))
	for _, n := range nights {
		if !Bookable(n) {
			continue
		}
		nd := Enrich(n, nb, bedrooms)
		if !Priced(nd) {
			continue
		}
		out = append(out, nd)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
