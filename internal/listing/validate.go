package listing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationResult reports contract violations (errors) and suspicious but
// tolerated values (warnings) for a single listing.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks the listing against the data-model invariants: required
// fields populated, confidence in [0,1], prices non-negative with 3-letter
// currency codes.
func Validate(l *Listing) ValidationResult {
	res := ValidationResult{Valid: true, Errors: []string{}, Warnings: []string{}}
	if l == nil {
		res.Valid = false
		res.Errors = append(res.Errors, "listing is nil")
		return res
	}

	if l.ID == "" {
		res.fail("id is required")
	}
	if !l.Marketplace.Valid() {
		res.fail(fmt.Sprintf("marketplace %q is not a known marketplace", l.Marketplace))
	}
	if l.URL == "" {
		res.fail("url is required")
	}
	if l.Title == "" {
		res.fail("title is required")
	}
	if l.ExtractedAt.IsZero() {
		res.fail("extractedAt is required")
	}
	if l.ExtractorVersion == "" {
		res.fail("extractorVersion is required")
	}
	if l.Confidence < 0 || l.Confidence > 1 {
		res.fail(fmt.Sprintf("confidence %.3f outside [0, 1]", l.Confidence))
	}

	checkMoney(&res, "price", l.Price)
	checkMoney(&res, "shippingCost", l.ShippingCost)
	checkMoney(&res, "originalPrice", l.OriginalPrice)

	if l.Condition != "" {
		if _, ok := ParseCondition(string(l.Condition)); !ok {
			res.fail(fmt.Sprintf("condition %q is not a known condition", l.Condition))
		}
	}
	if l.Availability != "" {
		if _, ok := ParseAvailability(string(l.Availability)); !ok {
			res.fail(fmt.Sprintf("availability %q is not a known availability", l.Availability))
		}
	}

	if l.QuantityAvailable != nil && *l.QuantityAvailable < 0 {
		res.fail(fmt.Sprintf("quantityAvailable %d is negative", *l.QuantityAvailable))
	}
	if l.Seller != nil && l.Seller.Rating != nil {
		if r := *l.Seller.Rating; r < 0 || r > 100 {
			res.fail(fmt.Sprintf("seller rating %.1f outside [0, 100]", r))
		}
	}

	if l.Price == nil {
		res.Warnings = append(res.Warnings, "no price extracted")
	}
	if l.Availability == AvailabilitySold && l.SoldDate == nil {
		res.Warnings = append(res.Warnings, "availability is sold but soldDate is missing")
	}
	if l.ExtractionMethod == "" {
		res.Warnings = append(res.Warnings, "extractionMethod is empty")
	}

	return res
}

func (r *ValidationResult) fail(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

func checkMoney(res *ValidationResult, field string, m *Money) {
	if m == nil {
		return
	}
	if m.Amount.LessThan(decimal.Zero) {
		res.fail(fmt.Sprintf("%s amount %s is negative", field, m.Amount))
	}
	if !validCurrency(m.Currency) {
		res.fail(fmt.Sprintf("%s currency %q is not a 3-letter code", field, m.Currency))
	}
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
