// Package sources defines the acquisition-channel model, the adapter
// contract, and the provenance record attached to every extraction.
package sources

// Channel is the mechanism by which listing data was obtained. The set is
// closed; external strings that do not match are refused.
type Channel string

const (
	ChannelOfficialAPI      Channel = "official_api"
	ChannelFinancialAPI     Channel = "financial_api"
	ChannelBrowserExtension Channel = "browser_extension"
	ChannelDataExport       Channel = "data_export"
	ChannelEmailParsing     Channel = "email_parsing"
	ChannelCookieImport     Channel = "cookie_import"
	ChannelScraping         Channel = "scraping"
	ChannelOCRExtraction    Channel = "ocr_extraction"
	ChannelLLMExtraction    Channel = "llm_extraction"
)

// ConfidenceRange bounds the confidence an adapter on a given channel is
// expected to report.
type ConfidenceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp forces v into the range.
func (r ConfidenceRange) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

type channelClass struct {
	tier       int
	confidence ConfidenceRange
}

// Fixed channel→tier classification. Tier 1 is the most trusted, tier 4 the
// most speculative.
var channelClasses = map[Channel]channelClass{
	ChannelOfficialAPI:      {tier: 1, confidence: ConfidenceRange{Min: 0.90, Max: 1.00}},
	ChannelFinancialAPI:     {tier: 1, confidence: ConfidenceRange{Min: 0.90, Max: 1.00}},
	ChannelBrowserExtension: {tier: 2, confidence: ConfidenceRange{Min: 0.80, Max: 0.95}},
	ChannelDataExport:       {tier: 2, confidence: ConfidenceRange{Min: 0.80, Max: 0.95}},
	ChannelEmailParsing:     {tier: 2, confidence: ConfidenceRange{Min: 0.80, Max: 0.95}},
	ChannelCookieImport:     {tier: 2, confidence: ConfidenceRange{Min: 0.80, Max: 0.95}},
	ChannelScraping:         {tier: 3, confidence: ConfidenceRange{Min: 0.70, Max: 0.85}},
	ChannelOCRExtraction:    {tier: 4, confidence: ConfidenceRange{Min: 0.55, Max: 0.80}},
	ChannelLLMExtraction:    {tier: 4, confidence: ConfidenceRange{Min: 0.55, Max: 0.80}},
}

// allChannels lists the closed set in stable tier-then-name order.
var allChannels = []Channel{
	ChannelOfficialAPI,
	ChannelFinancialAPI,
	ChannelBrowserExtension,
	ChannelDataExport,
	ChannelEmailParsing,
	ChannelCookieImport,
	ChannelScraping,
	ChannelOCRExtraction,
	ChannelLLMExtraction,
}

// ParseChannel maps an external string onto the closed channel set.
func ParseChannel(s string) (Channel, bool) {
	c := Channel(s)
	if _, ok := channelClasses[c]; ok {
		return c, true
	}
	return "", false
}

// Valid reports whether the channel is one of the nine known values.
func (c Channel) Valid() bool {
	_, ok := channelClasses[c]
	return ok
}

// TierFor returns the fixed tier for a channel, or 0 for unknown channels.
func TierFor(c Channel) int {
	return channelClasses[c].tier
}

// ConfidenceRangeFor returns the default confidence range for a channel.
// Unknown channels get the zero range.
func ConfidenceRangeFor(c Channel) ConfidenceRange {
	return channelClasses[c].confidence
}

// AllChannels returns the closed channel set in stable order.
func AllChannels() []Channel {
	out := make([]Channel, len(allChannels))
	copy(out, allChannels)
	return out
}
