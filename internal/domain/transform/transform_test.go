package transform

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/athebyme/listing-cloner/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitURLs(t *testing.T) {
	text := " https://reverb.com/item/1-guitar ,\nhttps://reverb.com/item/2\r\n\n,, https://reverb.com/item/3 "

	urls := SplitURLs(text)

	assert.Equal(t, []string{
		"https://reverb.com/item/1-guitar",
		"https://reverb.com/item/2",
		"https://reverb.com/item/3",
	}, urls)
	assert.Empty(t, SplitURLs(" ,\n , "))
}

func TestExtractListingID(t *testing.T) {
	cases := []struct {
		url    string
		wantID string
		wantOK bool
	}{
		{"https://reverb.com/item/123456", "123456", true},
		{"https://reverb.com/item/987-fender-strat-1978?utm=x", "987", true},
		{"https://reverb.com/item/abc/item/42", "42", true},
		{"https://example.com/no-marker", "", false},
		{"https://reverb.com/item/", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.url, func(t *testing.T) {
			id, ok := ExtractListingID(tc.url)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantID, id)
		})
	}
}

func TestParseShippingProfileID(t *testing.T) {
	id, err := ParseShippingProfileID(" 123456 ")
	require.NoError(t, err)
	assert.Equal(t, int64(123456), id)

	for _, bad := range []string{"", "abc", "12.5", "0", "-3", "12 34"} {
		_, err := ParseShippingProfileID(bad)
		assert.ErrorIs(t, err, ErrInvalidShippingProfileID, "input %q", bad)
	}
}

func TestHalvePrice(t *testing.T) {
	cases := map[string]string{
		"$1,200.00":    "600.00",
		"1,200.00":     "600.00",
		"100":          "50.00",
		"99.99":        "50.00",
		"0.01":         "0.01",
		"10.10":        "5.05",
		"1,234,567.89": "617283.95",
		" € 80 ":       "40.00",
		"0":            "0.00",
		"":             "0.00",
		"abc":          "0.00",
		"12abc":        "0.00",
		"1/2":          "0.00",
		"0x10":         "0.00",
		"NaN":          "0.00",
	}

	for in, want := range cases {
		t.Run(fmt.Sprintf("%q", in), func(t *testing.T) {
			assert.Equal(t, want, HalvePrice(in))
		})
	}
}

// Для любой неотрицательной суммы в центах результат равен точной половине
func TestHalvePriceMatchesExactHalf(t *testing.T) {
	for cents := int64(0); cents <= 250000; cents += 37 {
		amount := fmt.Sprintf("%d.%02d", cents/100, cents%100)
		halfCents := (cents + 1) / 2 // половина от нуля
		want := fmt.Sprintf("%d.%02d", halfCents/100, halfCents%100)

		require.Equal(t, want, HalvePrice(amount), "amount %s", amount)
	}
}

func sourceFromJSON(t *testing.T, raw string) *models.SourceListing {
	t.Helper()
	var src models.SourceListing
	require.NoError(t, json.Unmarshal([]byte(raw), &src))
	return &src
}

func TestBuildDraftPayload(t *testing.T) {
	src := sourceFromJSON(t, `{
		"make": "Fender",
		"model": "Stratocaster",
		"title": "1978 Fender Stratocaster",
		"description": "Great player",
		"finish": "Sunburst",
		"year": "1978",
		"handmade": true,
		"offers_enabled": true,
		"price": {"amount": "$1,200.00", "currency": "EUR"},
		"categories": [{"uuid": "cat-1"}, {"uuid": "cat-2"}],
		"condition": {"uuid": "cond-1"},
		"photos": [
			{"_links": {"large_crop": {"href": "https://img/1-large"}, "full": {"href": "https://img/1-full"}}},
			{"_links": {"full": {"href": "https://img/2-full"}}},
			{"_links": {"thumbnail": {"href": "https://img/3-thumb"}}},
			{"_links": {"large_crop": {"href": "https://img/4-large"}}}
		]
	}`)

	payload := BuildDraftPayload(src, 777)

	assert.Equal(t, "Fender", payload.Make)
	assert.Equal(t, "Stratocaster", payload.Model)
	assert.Equal(t, "1978 Fender Stratocaster", payload.Title)
	assert.Equal(t, "Great player", payload.Description)
	assert.Equal(t, "Sunburst", payload.Finish)
	assert.JSONEq(t, `"1978"`, string(payload.Year))
	assert.True(t, payload.Handmade)
	assert.False(t, payload.OffersEnabled)
	assert.Equal(t, int64(777), payload.ShippingProfileID)
	assert.Equal(t, models.DraftPrice{Amount: "600.00", Currency: "EUR"}, payload.Price)
	assert.Equal(t, []models.CategoryRef{{UUID: "cat-1"}}, payload.Categories)
	require.NotNil(t, payload.Condition)
	assert.Equal(t, "cond-1", payload.Condition.UUID)
	assert.Equal(t, []string{"https://img/1-large", "https://img/2-full", "https://img/4-large"}, payload.Photos)
}

func TestBuildDraftPayloadDefaults(t *testing.T) {
	src := sourceFromJSON(t, `{"title": "Bare listing", "offers_enabled": true}`)

	payload := BuildDraftPayload(src, 1)

	assert.Equal(t, models.DraftPrice{Amount: "0.00", Currency: "USD"}, payload.Price)
	assert.Nil(t, payload.Categories)
	assert.Nil(t, payload.Condition)
	assert.NotNil(t, payload.Photos)
	assert.Empty(t, payload.Photos)
	assert.False(t, payload.OffersEnabled)
	assert.False(t, payload.Handmade)

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"title": "Bare listing",
		"handmade": false,
		"offers_enabled": false,
		"shipping_profile_id": 1,
		"price": {"amount": "0.00", "currency": "USD"},
		"photos": []
	}`, string(body))
}

func TestBuildDraftPayloadNumericAndBrokenAmounts(t *testing.T) {
	numeric := sourceFromJSON(t, `{"price": {"amount": 250.5}}`)
	assert.Equal(t, "125.25", BuildDraftPayload(numeric, 1).Price.Amount)

	broken := sourceFromJSON(t, `{"price": {"amount": "call for price", "currency": "GBP"}}`)
	p := BuildDraftPayload(broken, 1)
	assert.Equal(t, "0.00", p.Price.Amount)
	assert.Equal(t, "GBP", p.Price.Currency)

	missing := sourceFromJSON(t, `{"price": {"currency": "CAD"}}`)
	assert.Equal(t, "0.00", BuildDraftPayload(missing, 1).Price.Amount)

	weird := sourceFromJSON(t, `{"price": {"amount": {"cents": 100}}}`)
	assert.Equal(t, "0.00", BuildDraftPayload(weird, 1).Price.Amount)
}

func TestBuildDraftPayloadCategoryWithoutUUID(t *testing.T) {
	src := sourceFromJSON(t, `{"categories": [{}, {"uuid": "second"}], "condition": {}}`)

	payload := BuildDraftPayload(src, 1)

	assert.Nil(t, payload.Categories)
	assert.Nil(t, payload.Condition)
}
