package apijson

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketsift/marketsift/internal/listing"
)

// itemPayload is the shape of an item document from the official API.
type itemPayload struct {
	ItemID            string          `json:"itemId"`
	LegacyItemID      string          `json:"legacyItemId"`
	Title             string          `json:"title"`
	ItemWebURL        string          `json:"itemWebUrl"`
	Price             *moneyPayload   `json:"price"`
	ShippingCost      *moneyPayload   `json:"shippingCost"`
	OriginalPrice     *moneyPayload   `json:"originalPrice"`
	Condition         string          `json:"condition"`
	Availability      string          `json:"availability"`
	QuantityAvailable *int            `json:"quantityAvailable"`
	SoldDate          string          `json:"soldDate"`
	Seller            *sellerPayload  `json:"seller"`
	Images            []imagePayload  `json:"images"`
	CategoryPath      string          `json:"categoryPath"`
	Aspects           []aspectPayload `json:"localizedAspects"`
}

type moneyPayload struct {
	Value    json.Number `json:"value"`
	Currency string      `json:"currency"`
}

type sellerPayload struct {
	Username           string      `json:"username"`
	FeedbackPercentage json.Number `json:"feedbackPercentage"`
	FeedbackScore      *int        `json:"feedbackScore"`
	TopRated           *bool       `json:"topRatedSeller"`
}

type imagePayload struct {
	ImageURL string `json:"imageUrl"`
}

type aspectPayload struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (p *itemPayload) toListing(marketplace listing.Marketplace, identifier string) (*listing.Listing, error) {
	id := p.ItemID
	if id == "" {
		id = p.LegacyItemID
	}
	if id == "" {
		id = identifier
	}

	u := p.ItemWebURL
	if u == "" {
		u = identifier
	}

	l := &listing.Listing{
		ID:           id,
		Marketplace:  marketplace,
		URL:          u,
		Title:        p.Title,
		Condition:    normalizeCondition(p.Condition),
		Availability: normalizeAvailability(p.Availability),
		ItemNumber:   p.LegacyItemID,
		ExtractedAt:  time.Now().UTC(),
	}

	var err error
	if l.Price, err = p.Price.toMoney(); err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	if l.ShippingCost, err = p.ShippingCost.toMoney(); err != nil {
		return nil, fmt.Errorf("shippingCost: %w", err)
	}
	if l.OriginalPrice, err = p.OriginalPrice.toMoney(); err != nil {
		return nil, fmt.Errorf("originalPrice: %w", err)
	}

	if p.QuantityAvailable != nil && *p.QuantityAvailable >= 0 {
		q := *p.QuantityAvailable
		l.QuantityAvailable = &q
	}
	if p.SoldDate != "" {
		if t, terr := time.Parse(time.RFC3339, p.SoldDate); terr == nil {
			l.SoldDate = &t
		}
	}
	if p.Seller != nil {
		l.Seller = p.Seller.toSeller()
	}
	for _, img := range p.Images {
		if img.ImageURL != "" {
			l.Images = append(l.Images, img.ImageURL)
		}
	}
	if p.CategoryPath != "" {
		for _, part := range strings.Split(p.CategoryPath, "|") {
			if part = strings.TrimSpace(part); part != "" {
				l.Category = append(l.Category, part)
			}
		}
	}
	if len(p.Aspects) > 0 {
		l.Attributes = make(map[string]any, len(p.Aspects))
		for _, a := range p.Aspects {
			if a.Name != "" {
				l.Attributes[a.Name] = a.Value
			}
		}
	}
	return l, nil
}

func (m *moneyPayload) toMoney() (*listing.Money, error) {
	if m == nil || m.Value == "" {
		return nil, nil
	}
	amount, err := decimal.NewFromString(m.Value.String())
	if err != nil {
		return nil, fmt.Errorf("bad amount %q", m.Value)
	}
	return &listing.Money{Amount: amount, Currency: strings.ToUpper(m.Currency)}, nil
}

func (s *sellerPayload) toSeller() *listing.Seller {
	out := &listing.Seller{ID: s.Username, Name: s.Username}
	if s.FeedbackPercentage != "" {
		if pct, err := strconv.ParseFloat(s.FeedbackPercentage.String(), 64); err == nil && pct >= 0 && pct <= 100 {
			out.Rating = &pct
		}
	}
	if s.FeedbackScore != nil {
		score := *s.FeedbackScore
		out.ReviewCount = &score
	}
	if s.TopRated != nil {
		verified := *s.TopRated
		out.Verified = &verified
	}
	return out
}

// confidence scores payload completeness inside the tier-1 band: a bare
// title sits at the floor, a fully populated document at the ceiling.
func (p *itemPayload) confidence() float64 {
	score := 0.90
	if p.Price != nil {
		score += 0.04
	}
	if len(p.Images) > 0 {
		score += 0.02
	}
	if p.Seller != nil {
		score += 0.02
	}
	if p.Condition != "" {
		score += 0.02
	}
	return score
}

func normalizeCondition(raw string) listing.Condition {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "NEW", "NEW_WITH_TAGS", "NEW_OTHER":
		return listing.ConditionNew
	case "LIKE_NEW", "USED_LIKE_NEW", "OPEN_BOX":
		return listing.ConditionUsedLikeNew
	case "USED_EXCELLENT", "USED_VERY_GOOD", "VERY_GOOD":
		return listing.ConditionUsedVeryGood
	case "USED", "USED_GOOD", "GOOD":
		return listing.ConditionUsedGood
	case "USED_ACCEPTABLE", "ACCEPTABLE", "FOR_PARTS_OR_NOT_WORKING":
		return listing.ConditionUsedAcceptable
	case "REFURBISHED", "SELLER_REFURBISHED", "CERTIFIED_REFURBISHED", "MANUFACTURER_REFURBISHED":
		return listing.ConditionRefurbished
	}
	return listing.ConditionUnknown
}

func normalizeAvailability(raw string) listing.Availability {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "IN_STOCK", "AVAILABLE", "LIMITED_STOCK":
		return listing.AvailabilityInStock
	case "SOLD", "ENDED_WITH_SALE":
		return listing.AvailabilitySold
	case "OUT_OF_STOCK", "TEMPORARILY_OUT_OF_STOCK":
		return listing.AvailabilityOutOfStock
	case "UNAVAILABLE", "ENDED":
		return listing.AvailabilityUnavailable
	}
	return listing.AvailabilityUnknown
}
