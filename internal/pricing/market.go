// Package pricing holds the pure pricing math: market figures extracted
// from neighborhood data, night enrichment, openings, forecasts and the
// seasonal estimate used when the market is silent.
package pricing

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Neighborhood data sections.
const (
	sectionPercentilePrices = "Future Percentile Prices"
	sectionOccupancy        = "Future Occ/New/Canc"
)

// Y_values rows of the percentile section.
const (
	rowMedian       = 1 // 50th percentile
	rowMedianBooked = 3
)

// DefaultBedrooms is the category tried first when a listing's size is unknown.
const DefaultBedrooms = "3"

// MarketPrice returns the market average for date: the 50th percentile of
// the first bedroom category that lists the date, else its median booked
// price.
func MarketPrice(nb json.RawMessage, date, bedrooms string) (float64, bool) {
	return marketPrice(nb, date, bedroomOrder(bedrooms, "1", "2", "0", "3", "4"))
}

// MarketPriceExact is MarketPrice restricted to the listing's own bedroom
// category.
func MarketPriceExact(nb json.RawMessage, date, bedrooms string) (float64, bool) {
	return marketPrice(nb, date, bedroomOrder(bedrooms))
}

func marketPrice(nb json.RawMessage, date string, keys []string) (float64, bool) {
	if len(nb) == 0 {
		return 0, false
	}
	categories := gjson.GetBytes(nb, gjson.Escape(sectionPercentilePrices)+".Category")
	if !categories.IsObject() {
		return 0, false
	}

	for _, key := range keys {
		cat := categories.Get(gjson.Escape(key))
		if !cat.Exists() {
			continue
		}
		idx := indexOf(cat.Get("X_values"), date)
		if idx < 0 {
			continue
		}
		rows := cat.Get("Y_values").Array()
		for _, row := range []int{rowMedian, rowMedianBooked} {
			if len(rows) <= row {
				continue
			}
			if v, ok := numberAt(rows[row], idx); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// Occupancy returns the market occupancy percentage for date. Series may be
// nested one level ([[...]]) or flat; fractions are scaled to percent.
func Occupancy(nb json.RawMessage, date, bedrooms string) (float64, bool) {
	return occupancy(nb, date, bedroomOrder(bedrooms, "3", "2", "1", "4", "5"))
}

// OccupancyExact is Occupancy restricted to the listing's own bedroom
// category.
func OccupancyExact(nb json.RawMessage, date, bedrooms string) (float64, bool) {
	return occupancy(nb, date, bedroomOrder(bedrooms))
}

func occupancy(nb json.RawMessage, date string, keys []string) (float64, bool) {
	if len(nb) == 0 {
		return 0, false
	}
	section := gjson.GetBytes(nb, gjson.Escape(sectionOccupancy))
	occIdx := indexOf(section.Get("Labels"), "Occupancy")
	if occIdx < 0 {
		return 0, false
	}
	categories := section.Get("Category")

	for _, key := range keys {
		cat := categories.Get(gjson.Escape(key))
		if !cat.Exists() {
			continue
		}
		idx := indexOf(cat.Get("X_values"), date)
		rows := cat.Get("Y_values").Array()
		if idx < 0 || len(rows) <= occIdx {
			continue
		}

		points := rows[occIdx].Array()
		if len(points) == 0 {
			continue
		}
		var v gjson.Result
		switch {
		case points[0].IsArray() && len(points[0].Array()) > idx:
			v = points[0].Array()[idx]
		case len(points) > idx:
			v = points[idx]
		default:
			continue
		}
		if v.Type != gjson.Number {
			continue
		}

		occ := v.Float()
		if occ <= 1.0 {
			occ *= 100
		}
		return occ, true
	}
	return 0, false
}

// bedroomOrder puts the listing's own category first.
func bedroomOrder(bedrooms string, rest ...string) []string {
	if bedrooms == "" {
		bedrooms = DefaultBedrooms
	}
	return append([]string{bedrooms}, rest...)
}

func indexOf(arr gjson.Result, s string) int {
	for i, v := range arr.Array() {
		if v.String() == s {
			return i
		}
	}
	return -1
}

func numberAt(row gjson.Result, idx int) (float64, bool) {
	values := row.Array()
	if len(values) <= idx || values[idx].Type != gjson.Number {
		return 0, false
	}
	return values[idx].Float(), true
}
