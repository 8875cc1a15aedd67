package domain_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mairble/mairble-backend-go/internal/domain"
)

func TestNight_Bookability(t *testing.T) {
	tests := []struct {
		name       string
		night      domain.Night
		booked     bool
		unbookable bool
	}{
		{"available", domain.Night{BookingStatus: ""}, false, false},
		{"booked lower", domain.Night{BookingStatus: "booked"}, true, false},
		{"booked check-in", domain.Night{BookingStatus: "Booked (Check-In)"}, true, false},
		{"blocked", domain.Night{Unbookable: 1}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.booked, tt.night.IsBooked())
			assert.Equal(t, tt.unbookable, tt.night.IsUnbookable())
		})
	}
}

func TestNight_HostPrice(t *testing.T) {
	price, user, zero := 500.0, 450.0, 0.0

	assert.Equal(t, 450.0, *domain.Night{Price: &price, UserPrice: &user}.HostPrice())
	assert.Equal(t, 500.0, *domain.Night{Price: &price, UserPrice: &zero}.HostPrice())
	assert.Nil(t, domain.Night{}.HostPrice())
}

func TestStringList_AcceptsStringOrArray(t *testing.T) {
	var pc domain.PropertyContext
	body := `{"mainGuest":"Leisure","specialFeature":"Location","pricingGoal":["Max Price","Fill Dates"]}`
	require.NoError(t, json.Unmarshal([]byte(body), &pc))

	assert.Equal(t, domain.StringList{"Location"}, pc.SpecialFeature)
	assert.Equal(t, domain.StringList{"Max Price", "Fill Dates"}, pc.PricingGoal)
	assert.False(t, pc.IsEmpty())

	var empty domain.PropertyContext
	require.NoError(t, json.Unmarshal([]byte(`{"specialFeature":""}`), &empty))
	assert.True(t, empty.IsEmpty())

	var bad domain.PropertyContext
	assert.Error(t, json.Unmarshal([]byte(`{"specialFeature":42}`), &bad))
}

func TestSelectedProperty_BedroomKey(t *testing.T) {
	three := 3
	assert.Equal(t, "3", (&domain.SelectedProperty{Bedrooms: &three}).BedroomKey())
	assert.Equal(t, "", (&domain.SelectedProperty{}).BedroomKey())

	var nilProp *domain.SelectedProperty
	assert.Equal(t, "", nilProp.BedroomKey())
}

func TestListing_Location(t *testing.T) {
	assert.Equal(t, "Newport, RI", domain.Listing{CityName: "Newport", State: "RI"}.Location())
	assert.Equal(t, "Newport", domain.Listing{CityName: "Newport"}.Location())
}

func TestErrors(t *testing.T) {
	inner := &domain.ErrUpstreamStatus{StatusCode: 404, Body: "missing"}
	err := error(&domain.ErrExternalService{Service: "pricelabs", Err: inner})

	var status *domain.ErrUpstreamStatus
	require.True(t, errors.As(err, &status))
	assert.True(t, status.Permanent())
	assert.False(t, (&domain.ErrUpstreamStatus{StatusCode: 429}).Permanent())
	assert.False(t, (&domain.ErrUpstreamStatus{StatusCode: 503}).Permanent())
	assert.Equal(t, "OPENAI_API_KEY not configured", (&domain.ErrNotConfigured{Setting: "OPENAI_API_KEY"}).Error())
}
