// Package emailparse extracts listings from order-confirmation emails the
// user forwards in. Parsing is heuristic: marketplaces change their mail
// templates without notice, so every field beyond the title is best-effort.
package emailparse

import (
	"context"
	"errors"
	"io"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

const adapterVersion = "1.3.0"

// Config wires the adapter to one marketplace.
type Config struct {
	Marketplace listing.Marketplace
}

// Adapter is the tier-2 email_parsing source. Emails are historical by
// definition: they describe a completed order, not the live listing.
type Adapter struct {
	sources.Base
}

// New builds the adapter for a marketplace.
func New(cfg Config) *Adapter {
	return &Adapter{
		Base: sources.NewBase(sources.Info{
			Channel:            sources.ChannelEmailParsing,
			Marketplace:        cfg.Marketplace,
			Name:               string(cfg.Marketplace) + "-email",
			Version:            adapterVersion,
			RequiresUserAction: true,
		}),
	}
}

// CanHandle accepts raw RFC 5322 messages and .eml file names.
func (a *Adapter) CanHandle(identifier string) bool {
	if strings.HasSuffix(strings.ToLower(identifier), ".eml") {
		return true
	}
	return strings.Contains(identifier, "@")
}

// IsAvailable: emails carry their own data; the adapter is always ready.
func (a *Adapter) IsAvailable(context.Context) bool {
	return true
}

// Health reports the rolling extraction outcomes.
func (a *Adapter) Health() sources.HealthSnapshot {
	return a.Snapshot(true)
}

// Subject lines that mark a confirmation mail, and the patterns that pull
// fields out of template bodies. Ordered from most to least specific.
var (
	confirmationSubject = regexp.MustCompile(`(?i)(order (?:confirmed|confirmation|placed)|you(?:'ve| have) (?:won|purchased)|thanks? for your (?:order|purchase)|payment received)`)
	subjectItemPattern  = regexp.MustCompile(`(?i)(?:order confirmed:|you(?:'ve| have) purchased:?|confirmed:)\s*(.+?)\s*$`)

	bodyItemPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?im)^\s*item(?: title)?:\s*(.+?)\s*$`),
		regexp.MustCompile(`(?im)^\s*you purchased:\s*(.+?)\s*$`),
	}
	itemNumberPattern = regexp.MustCompile(`(?im)^\s*item (?:number|id):\s*([A-Za-z0-9-]+)\s*$`)
	orderNumberPattern = regexp.MustCompile(`(?im)^\s*order (?:number|id):\s*([A-Za-z0-9-]+)\s*$`)
	pricePattern       = regexp.MustCompile(`(?im)^\s*(?:total|price|sold for|order total|item price):\s*(?:(US|AU|CA)\s*)?([$£€])\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)\s*$`)
	sellerPattern      = regexp.MustCompile(`(?im)^\s*(?:seller|sold by):\s*(.+?)\s*$`)
	urlPattern         = regexp.MustCompile(`https?://[^\s<>"]+/(?:itm|dp|gp/product|ip|listing)/[^\s<>"]+`)
)

var symbolCurrencies = map[string]string{"$": "USD", "£": "GBP", "€": "EUR"}

// ExtractWithProvenance parses a confirmation email into a listing. Mails
// that are not order confirmations are a miss, not an error.
func (a *Adapter) ExtractWithProvenance(ctx context.Context, content, identifier string, opts sources.ExtractOptions) (ext *sources.Extraction, err error) {
	defer func() { a.RecordOutcome(ext, err) }()

	if content == "" {
		return nil, errors.New("email content is required")
	}

	msg, perr := mail.ReadMessage(strings.NewReader(content))
	if perr != nil {
		return nil, errors.New("content is not an RFC 5322 message")
	}

	subject := msg.Header.Get("Subject")
	if !confirmationSubject.MatchString(subject) {
		return nil, nil
	}

	body := readBody(msg)

	title := firstMatch(bodyItemPatterns, body)
	if title == "" {
		if m := subjectItemPattern.FindStringSubmatch(subject); len(m) == 2 {
			title = strings.Trim(m[1], `"'`)
		}
	}
	if title == "" {
		return nil, nil
	}

	itemNumber := ""
	if m := itemNumberPattern.FindStringSubmatch(body); len(m) == 2 {
		itemNumber = m[1]
	}
	id := itemNumber
	if id == "" {
		if m := orderNumberPattern.FindStringSubmatch(body); len(m) == 2 {
			id = "order:" + m[1]
		}
	}
	if id == "" {
		id = "email:" + sources.HashContent([]byte(subject+title))[:16]
	}

	pageURL := identifier
	if m := urlPattern.FindString(body); m != "" {
		pageURL = m
	}

	l := &listing.Listing{
		ID:               id,
		Marketplace:      a.Marketplace(),
		URL:              pageURL,
		Title:            title,
		ItemNumber:       itemNumber,
		Availability:     listing.AvailabilitySold,
		ExtractedAt:      time.Now().UTC(),
		ExtractionMethod: string(sources.ChannelEmailParsing),
		ExtractorVersion: a.Version(),
	}

	confidence := 0.80
	if m := pricePattern.FindStringSubmatch(body); len(m) == 4 {
		amount, aerr := decimal.NewFromString(strings.ReplaceAll(m[3], ",", ""))
		if aerr == nil {
			l.Price = &listing.Money{Amount: amount, Currency: symbolCurrencies[m[2]]}
			confidence += 0.05
		}
	}
	if m := sellerPattern.FindStringSubmatch(body); len(m) == 2 {
		l.Seller = &listing.Seller{Name: m[1]}
		confidence += 0.02
	}
	if itemNumber != "" {
		confidence += 0.03
	}
	if sent, derr := msg.Header.Date(); derr == nil {
		d := sent.UTC()
		l.SoldDate = &d
		confidence += 0.02
	}

	prov := a.NewProvenance(confidence, sources.FreshnessHistorical, sources.HashContent([]byte(content)))
	prov.UserConsented = true
	prov.TermsCompliant = true
	l.Confidence = prov.Confidence

	return &sources.Extraction{Listing: *l, Provenance: prov}, nil
}

// readBody returns the decoded message body. Only quoted-printable needs
// undoing; confirmation mails are otherwise plain enough to scan as-is.
func readBody(msg *mail.Message) string {
	var reader io.Reader = msg.Body
	if strings.EqualFold(msg.Header.Get("Content-Transfer-Encoding"), "quoted-printable") {
		reader = quotedprintable.NewReader(msg.Body)
	}
	raw, err := io.ReadAll(io.LimitReader(reader, 1<<20))
	if err != nil {
		return ""
	}
	return string(raw)
}

func firstMatch(patterns []*regexp.Regexp, body string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(body); len(m) == 2 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
