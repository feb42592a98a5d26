package listing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validListing() *Listing {
	return &Listing{
		ID:               "123",
		Marketplace:      MarketplaceEbay,
		URL:              "https://ebay.com/itm/123",
		Title:            "Widget",
		Price:            NewMoney(19.99, "USD"),
		Condition:        ConditionNew,
		Availability:     AvailabilityInStock,
		ExtractedAt:      time.Now().UTC(),
		ExtractionMethod: "scraping",
		Confidence:       0.8,
		ExtractorVersion: "1.0.0",
	}
}

func TestValidateAcceptsConformingListing(t *testing.T) {
	res := Validate(validListing())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidateRequiredFields(t *testing.T) {
	cases := map[string]func(*Listing){
		"id":               func(l *Listing) { l.ID = "" },
		"marketplace":      func(l *Listing) { l.Marketplace = "bazaar" },
		"url":              func(l *Listing) { l.URL = "" },
		"title":            func(l *Listing) { l.Title = "" },
		"extractedAt":      func(l *Listing) { l.ExtractedAt = time.Time{} },
		"extractorVersion": func(l *Listing) { l.ExtractorVersion = "" },
	}
	for name, mutate := range cases {
		l := validListing()
		mutate(l)
		res := Validate(l)
		assert.False(t, res.Valid, name)
		assert.NotEmpty(t, res.Errors, name)
	}
}

func TestValidateConfidenceBounds(t *testing.T) {
	l := validListing()
	l.Confidence = 1.2
	assert.False(t, Validate(l).Valid)

	l.Confidence = -0.1
	assert.False(t, Validate(l).Valid)

	l.Confidence = 0
	assert.True(t, Validate(l).Valid)
	l.Confidence = 1
	assert.True(t, Validate(l).Valid)
}

func TestValidatePrice(t *testing.T) {
	l := validListing()
	l.Price = NewMoney(-5, "USD")
	res := Validate(l)
	assert.False(t, res.Valid)

	l = validListing()
	l.Price = NewMoney(5, "us")
	assert.False(t, Validate(l).Valid)

	l = validListing()
	l.Price = NewMoney(5, "usd")
	assert.False(t, Validate(l).Valid, "currency codes are upper case")

	l = validListing()
	l.Price = nil
	res = Validate(l)
	assert.True(t, res.Valid)
	assert.Contains(t, res.Warnings, "no price extracted")
}

func TestValidateNilListing(t *testing.T) {
	res := Validate(nil)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)
}

func TestValidateWarnings(t *testing.T) {
	l := validListing()
	l.Availability = AvailabilitySold
	res := Validate(l)
	assert.True(t, res.Valid)
	assert.Contains(t, res.Warnings, "availability is sold but soldDate is missing")

	l = validListing()
	l.ExtractionMethod = ""
	res = Validate(l)
	assert.True(t, res.Valid)
	assert.Contains(t, res.Warnings, "extractionMethod is empty")
}

func TestValidateSellerRating(t *testing.T) {
	l := validListing()
	bad := 120.0
	l.Seller = &Seller{Name: "s", Rating: &bad}
	assert.False(t, Validate(l).Valid)
}
