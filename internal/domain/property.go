package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// StringList accepts either a JSON string or an array of strings.
// The mobile client sends single-select answers as plain strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*l = nil
		} else {
			*l = StringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// PropertyContext is the host's onboarding answers about the property.
type PropertyContext struct {
	MainGuest             string            `json:"mainGuest,omitempty"`
	SpecialFeature        StringList        `json:"specialFeature,omitempty"`
	PricingGoal           StringList        `json:"pricingGoal,omitempty"`
	SpecialFeatureDetails map[string]string `json:"specialFeatureDetails,omitempty"`
}

// IsEmpty reports whether no answer would change a prompt.
func (p *PropertyContext) IsEmpty() bool {
	return p == nil || (p.MainGuest == "" && len(p.SpecialFeature) == 0 && len(p.PricingGoal) == 0)
}

// SelectedProperty is the listing currently selected in the app.
type SelectedProperty struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
	Bedrooms *int   `json:"no_of_bedrooms,omitempty"`
	PMS      string `json:"pms,omitempty"`
}

// BedroomKey is the neighborhood category key for the property.
func (p *SelectedProperty) BedroomKey() string {
	if p == nil || p.Bedrooms == nil {
		return ""
	}
	return strconv.Itoa(*p.Bedrooms)
}

// Listing is an entry of the provider's listing catalog.
type Listing struct {
	ID          string   `json:"id"`
	PMS         string   `json:"pms"`
	Name        string   `json:"name"`
	CityName    string   `json:"city_name,omitempty"`
	State       string   `json:"state,omitempty"`
	Country     string   `json:"country,omitempty"`
	Bedrooms    *int     `json:"no_of_bedrooms,omitempty"`
	Base        *float64 `json:"base,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	PushEnabled bool     `json:"push_enabled,omitempty"`
}

// Location joins city and state for display.
func (l Listing) Location() string {
	parts := make([]string, 0, 2)
	for _, p := range []string{l.CityName, l.State} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
