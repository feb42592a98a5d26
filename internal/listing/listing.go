// Package listing defines the normalized marketplace listing model shared by
// every extraction channel.
package listing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Marketplace identifies the marketplace a listing belongs to.
type Marketplace string

const (
	MarketplaceEbay    Marketplace = "ebay"
	MarketplaceAmazon  Marketplace = "amazon"
	MarketplaceWalmart Marketplace = "walmart"
	MarketplaceEtsy    Marketplace = "etsy"
	MarketplaceCustom  Marketplace = "custom"
)

// ParseMarketplace maps an external string onto the closed marketplace set.
// Unknown values are refused rather than coerced.
func ParseMarketplace(s string) (Marketplace, bool) {
	m := Marketplace(s)
	switch m {
	case MarketplaceEbay, MarketplaceAmazon, MarketplaceWalmart, MarketplaceEtsy, MarketplaceCustom:
		return m, true
	}
	return "", false
}

// Valid reports whether the marketplace is one of the known values.
func (m Marketplace) Valid() bool {
	_, ok := ParseMarketplace(string(m))
	return ok
}

// Condition describes the physical state of the listed item.
type Condition string

const (
	ConditionNew          Condition = "new"
	ConditionUsedLikeNew  Condition = "used_like_new"
	ConditionUsedVeryGood Condition = "used_very_good"
	ConditionUsedGood     Condition = "used_good"
	ConditionUsedAcceptable   Condition = "used_acceptable"
	ConditionRefurbished  Condition = "refurbished"
	ConditionUnknown      Condition = "unknown"
)

// ParseCondition maps an external string onto the condition set, refusing
// unknown values.
func ParseCondition(s string) (Condition, bool) {
	c := Condition(s)
	switch c {
	case ConditionNew, ConditionUsedLikeNew, ConditionUsedVeryGood,
		ConditionUsedGood, ConditionUsedAcceptable, ConditionRefurbished, ConditionUnknown:
		return c, true
	}
	return "", false
}

// Availability describes whether the item can still be bought.
type Availability string

const (
	AvailabilityInStock     Availability = "in_stock"
	AvailabilitySold        Availability = "sold"
	AvailabilityOutOfStock  Availability = "out_of_stock"
	AvailabilityUnavailable Availability = "unavailable"
	AvailabilityUnknown     Availability = "unknown"
)

// ParseAvailability maps an external string onto the availability set,
// refusing unknown values.
func ParseAvailability(s string) (Availability, bool) {
	a := Availability(s)
	switch a {
	case AvailabilityInStock, AvailabilitySold, AvailabilityOutOfStock,
		AvailabilityUnavailable, AvailabilityUnknown:
		return a, true
	}
	return "", false
}

// Money pairs an exact decimal amount with an ISO-4217 currency code.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney builds a Money value from a float amount. Adapters that parse
// string prices should prefer decimal.NewFromString to avoid float noise.
func NewMoney(amount float64, currency string) *Money {
	return &Money{Amount: decimal.NewFromFloat(amount), Currency: currency}
}

// Equal reports whether two money values agree on amount and currency.
func (m *Money) Equal(o *Money) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

// Seller captures what a source knows about the party offering the item.
// Every field is optional; sources rarely report all of them.
type Seller struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Rating      *float64 `json:"rating,omitempty"` // 0-100
	ReviewCount *int     `json:"reviewCount,omitempty"`
	Verified    *bool    `json:"verified,omitempty"`
}

// Listing is the normalized extraction result. Required fields per the data
// contract: ID, Marketplace, URL, Title, ExtractedAt, Confidence and
// ExtractorVersion are always populated by conforming adapters.
type Listing struct {
	ID          string      `json:"id"`
	Marketplace Marketplace `json:"marketplace"`
	URL         string      `json:"url"`
	Title       string      `json:"title"`

	Price         *Money `json:"price,omitempty"`
	ShippingCost  *Money `json:"shippingCost,omitempty"`
	OriginalPrice *Money `json:"originalPrice,omitempty"`

	Condition    Condition    `json:"condition"`
	Availability Availability `json:"availability"`

	SoldDate          *time.Time `json:"soldDate,omitempty"`
	QuantityAvailable *int       `json:"quantityAvailable,omitempty"`

	Seller *Seller  `json:"seller,omitempty"`
	Images []string `json:"images,omitempty"`

	ItemNumber string         `json:"itemNumber,omitempty"`
	Category   []string       `json:"category,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`

	ExtractedAt      time.Time `json:"extractedAt"`
	ExtractionMethod string    `json:"extractionMethod"`
	Confidence       float64   `json:"confidence"`
	ExtractorVersion string    `json:"extractorVersion"`
}

// Clone returns a deep copy. Merging builds new listings instead of mutating
// adapter results, which stay immutable once returned.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	out := *l
	out.Price = cloneMoney(l.Price)
	out.ShippingCost = cloneMoney(l.ShippingCost)
	out.OriginalPrice = cloneMoney(l.OriginalPrice)
	if l.SoldDate != nil {
		d := *l.SoldDate
		out.SoldDate = &d
	}
	if l.QuantityAvailable != nil {
		q := *l.QuantityAvailable
		out.QuantityAvailable = &q
	}
	if l.Seller != nil {
		s := *l.Seller
		if l.Seller.Rating != nil {
			r := *l.Seller.Rating
			s.Rating = &r
		}
		if l.Seller.ReviewCount != nil {
			rc := *l.Seller.ReviewCount
			s.ReviewCount = &rc
		}
		if l.Seller.Verified != nil {
			v := *l.Seller.Verified
			s.Verified = &v
		}
		out.Seller = &s
	}
	if l.Images != nil {
		out.Images = append([]string(nil), l.Images...)
	}
	if l.Category != nil {
		out.Category = append([]string(nil), l.Category...)
	}
	if l.Attributes != nil {
		attrs := make(map[string]any, len(l.Attributes))
		for k, v := range l.Attributes {
			attrs[k] = v
		}
		out.Attributes = attrs
	}
	return &out
}

func cloneMoney(m *Money) *Money {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
