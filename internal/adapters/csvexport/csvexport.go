// Package csvexport extracts listings from user-uploaded marketplace export
// files (sold-item reports, order history CSVs). The user hands over the
// file, so extraction is tier-2: first-party data, second-hand delivery.
package csvexport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

const adapterVersion = "1.1.0"

// Config wires the adapter to one marketplace.
type Config struct {
	Marketplace listing.Marketplace
}

// Adapter is the tier-2 data_export source. It works purely on provided
// content; there is nothing to fetch.
type Adapter struct {
	sources.Base
}

// New builds the adapter for a marketplace.
func New(cfg Config) *Adapter {
	return &Adapter{
		Base: sources.NewBase(sources.Info{
			Channel:            sources.ChannelDataExport,
			Marketplace:        cfg.Marketplace,
			Name:               string(cfg.Marketplace) + "-export",
			Version:            adapterVersion,
			RequiresUserAction: true,
		}),
	}
}

var bareIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,64}$`)

// CanHandle accepts export file names and bare item ids to look up inside
// the export.
func (a *Adapter) CanHandle(identifier string) bool {
	if strings.HasSuffix(strings.ToLower(identifier), ".csv") {
		return true
	}
	return bareIDPattern.MatchString(identifier)
}

// IsAvailable: exports carry their own data; the adapter is always ready.
func (a *Adapter) IsAvailable(context.Context) bool {
	return true
}

// Health reports the rolling extraction outcomes.
func (a *Adapter) Health() sources.HealthSnapshot {
	return a.Snapshot(true)
}

// ExtractWithProvenance finds the identified row in the export and maps it
// to a listing. With a single data row the identifier match is waived, so
// single-item exports just work.
func (a *Adapter) ExtractWithProvenance(ctx context.Context, content, identifier string, opts sources.ExtractOptions) (ext *sources.Extraction, err error) {
	defer func() { a.RecordOutcome(ext, err) }()

	if content == "" {
		return nil, errors.New("export content is required")
	}

	header, rows, perr := parseCSV(content)
	if perr != nil {
		return nil, perr
	}
	cols := mapColumns(header)
	if cols.title < 0 {
		return nil, errors.New("unrecognized export header: no title column")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := selectRow(rows, cols, identifier)
	if row == nil {
		return nil, nil
	}

	l, confidence := cols.toListing(row, a.Marketplace(), identifier)
	if l == nil {
		return nil, nil
	}
	l.ExtractionMethod = string(sources.ChannelDataExport)
	l.ExtractorVersion = a.Version()

	prov := a.NewProvenance(confidence, sources.FreshnessHistorical, sources.HashContent([]byte(content)))
	prov.UserConsented = true
	prov.TermsCompliant = true
	l.Confidence = prov.Confidence

	return &sources.Extraction{Listing: *l, Provenance: prov}, nil
}

func parseCSV(content string) ([]string, [][]string, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	r := csv.NewReader(strings.NewReader(content))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read export header: %w", err)
	}
	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read export row: %w", err)
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// columns holds the resolved index of each recognized export column, -1 when
// the export does not carry it.
type columns struct {
	id        int
	title     int
	price     int
	currency  int
	shipping  int
	soldDate  int
	quantity  int
	condition int
	url       int
	imageURL  int
}

// columnAliases maps normalized header names onto semantic columns. Exports
// from different marketplaces label the same thing differently.
var columnAliases = map[string][]string{
	"id":        {"item id", "item number", "itemid", "listing id", "transaction id", "order id", "asin"},
	"title":     {"title", "item title", "name", "product name", "listing title"},
	"price":     {"sold for", "price", "sale price", "total price", "sold price", "item price"},
	"currency":  {"currency", "sold for currency", "price currency"},
	"shipping":  {"shipping", "shipping cost", "postage", "shipping and handling"},
	"soldDate":  {"sold date", "sale date", "date sold", "end date", "order date"},
	"quantity":  {"quantity", "qty", "quantity sold"},
	"condition": {"condition", "item condition"},
	"url":       {"url", "item url", "view item url", "listing url"},
	"imageUrl":  {"image url", "picture url", "gallery url"},
}

func mapColumns(header []string) columns {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normalizeHeader(h)] = i
	}
	find := func(key string) int {
		for _, alias := range columnAliases[key] {
			if i, ok := index[alias]; ok {
				return i
			}
		}
		return -1
	}
	return columns{
		id:        find("id"),
		title:     find("title"),
		price:     find("price"),
		currency:  find("currency"),
		shipping:  find("shipping"),
		soldDate:  find("soldDate"),
		quantity:  find("quantity"),
		condition: find("condition"),
		url:       find("url"),
		imageURL:  find("imageUrl"),
	}
}

var headerJunk = regexp.MustCompile(`[^a-z0-9 ]+`)

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = headerJunk.ReplaceAllString(h, " ")
	return strings.Join(strings.Fields(h), " ")
}

// selectRow picks the export row matching the identifier by id, URL or
// title, or the sole data row when the export holds exactly one.
func selectRow(rows [][]string, cols columns, identifier string) []string {
	for _, row := range rows {
		if cols.id >= 0 && cols.id < len(row) && cell(row, cols.id) == identifier {
			return row
		}
		if cols.url >= 0 && cell(row, cols.url) != "" && cell(row, cols.url) == identifier {
			return row
		}
		if cols.id >= 0 && cell(row, cols.id) != "" && strings.Contains(identifier, cell(row, cols.id)) {
			return row
		}
	}
	if len(rows) == 1 {
		return rows[0]
	}
	return nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c columns) toListing(row []string, marketplace listing.Marketplace, identifier string) (*listing.Listing, float64) {
	title := cell(row, c.title)
	if title == "" {
		return nil, 0
	}

	id := cell(row, c.id)
	if id == "" {
		id = identifier
	}
	u := cell(row, c.url)
	if u == "" {
		u = identifier
	}

	l := &listing.Listing{
		ID:          id,
		Marketplace: marketplace,
		URL:         u,
		Title:       title,
		ItemNumber:  cell(row, c.id),
		ExtractedAt: time.Now().UTC(),
	}

	confidence := 0.80
	if money := parseMoney(cell(row, c.price), cell(row, c.currency)); money != nil {
		l.Price = money
		confidence += 0.06
	}
	if money := parseMoney(cell(row, c.shipping), cell(row, c.currency)); money != nil {
		l.ShippingCost = money
	}
	if t := parseDate(cell(row, c.soldDate)); t != nil {
		l.SoldDate = t
		l.Availability = listing.AvailabilitySold
		confidence += 0.04
	}
	if q := cell(row, c.quantity); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n >= 0 {
			l.QuantityAvailable = &n
		}
	}
	if cond := normalizeCondition(cell(row, c.condition)); cond != "" {
		l.Condition = cond
		confidence += 0.03
	}
	if img := cell(row, c.imageURL); img != "" {
		l.Images = []string{img}
		confidence += 0.02
	}
	return l, confidence
}

func parseMoney(raw, currencyCol string) *listing.Money {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	currency := strings.ToUpper(strings.TrimSpace(currencyCol))
	switch {
	case strings.HasPrefix(raw, "$"):
		raw = strings.TrimPrefix(raw, "$")
		if currency == "" {
			currency = "USD"
		}
	case strings.HasPrefix(raw, "£"):
		raw = strings.TrimPrefix(raw, "£")
		if currency == "" {
			currency = "GBP"
		}
	case strings.HasPrefix(raw, "€"):
		raw = strings.TrimPrefix(raw, "€")
		if currency == "" {
			currency = "EUR"
		}
	}
	if currency == "" {
		currency = "USD"
	}

	raw = strings.ReplaceAll(raw, ",", "")
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || amount.IsNegative() {
		return nil
	}
	return &listing.Money{Amount: amount, Currency: currency}
}

var exportDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	time.RFC3339,
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range exportDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func normalizeCondition(raw string) listing.Condition {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "new", "brand new", "new with tags":
		return listing.ConditionNew
	case "like new", "open box":
		return listing.ConditionUsedLikeNew
	case "very good", "used - very good":
		return listing.ConditionUsedVeryGood
	case "used", "good", "used - good", "pre-owned":
		return listing.ConditionUsedGood
	case "acceptable", "used - acceptable":
		return listing.ConditionUsedAcceptable
	case "refurbished", "seller refurbished":
		return listing.ConditionRefurbished
	}
	return listing.ConditionUnknown
}
