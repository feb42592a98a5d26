package scrape

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/marketsift/marketsift/internal/listing"
)

// pageData is everything the parser could pull out of one document.
type pageData struct {
	title        string
	price        *listing.Money
	condition    listing.Condition
	availability listing.Availability
	images       []string
	sellerName   string
	sku          string

	fromJSONLD bool
}

var (
	jsonLDPattern = regexp.MustCompile(`(?is)<script[^>]*type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)
	metaPattern   = regexp.MustCompile(`(?is)<meta\s+[^>]*>`)
	attrPattern   = regexp.MustCompile(`(?i)(property|name|content)\s*=\s*"([^"]*)"|(property|name|content)\s*=\s*'([^']*)'`)
	titlePattern  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
)

// parsePage runs the JSON-LD pass first and fills gaps from OpenGraph meta
// tags and the document title.
func parsePage(html string) pageData {
	var page pageData

	for _, m := range jsonLDPattern.FindAllStringSubmatch(html, -1) {
		if product, ok := findProduct(m[1]); ok {
			page.applyProduct(product)
			page.fromJSONLD = true
			break
		}
	}

	meta := metaTags(html)
	if page.title == "" {
		page.title = meta["og:title"]
	}
	if page.title == "" {
		if m := titlePattern.FindStringSubmatch(html); len(m) == 2 {
			page.title = strings.TrimSpace(m[1])
		}
	}
	if page.price == nil {
		if amount := meta["product:price:amount"]; amount != "" {
			if d, err := decimal.NewFromString(amount); err == nil {
				currency := strings.ToUpper(meta["product:price:currency"])
				if currency == "" {
					currency = "USD"
				}
				page.price = &listing.Money{Amount: d, Currency: currency}
			}
		}
	}
	if len(page.images) == 0 && meta["og:image"] != "" {
		page.images = []string{meta["og:image"]}
	}
	return page
}

// findProduct digs a schema.org Product out of a JSON-LD block, looking
// through top-level arrays and @graph containers.
func findProduct(raw string) (map[string]any, bool) {
	var node any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &node); err != nil {
		return nil, false
	}
	return searchProduct(node, 0)
}

func searchProduct(node any, depth int) (map[string]any, bool) {
	if depth > 3 {
		return nil, false
	}
	switch v := node.(type) {
	case map[string]any:
		if t, _ := v["@type"].(string); strings.EqualFold(t, "Product") {
			return v, true
		}
		if graph, ok := v["@graph"]; ok {
			return searchProduct(graph, depth+1)
		}
	case []any:
		for _, item := range v {
			if product, ok := searchProduct(item, depth+1); ok {
				return product, true
			}
		}
	}
	return nil, false
}

func (p *pageData) applyProduct(product map[string]any) {
	p.title = stringOf(product["name"])
	p.sku = stringOf(product["sku"])
	p.images = stringsOf(product["image"])

	offer := firstObject(product["offers"])
	if offer != nil {
		if amount := stringOf(offer["price"]); amount != "" {
			if d, err := decimal.NewFromString(amount); err == nil {
				currency := strings.ToUpper(stringOf(offer["priceCurrency"]))
				if currency == "" {
					currency = "USD"
				}
				p.price = &listing.Money{Amount: d, Currency: currency}
			}
		}
		p.availability = schemaAvailability(stringOf(offer["availability"]))
		p.condition = schemaCondition(stringOf(offer["itemCondition"]))
		if seller := firstObject(offer["seller"]); seller != nil {
			p.sellerName = stringOf(seller["name"])
		}
	}
	if p.condition == "" {
		p.condition = schemaCondition(stringOf(product["itemCondition"]))
	}
}

// confidence scores parse completeness inside the tier-3 band.
func (p *pageData) confidence() float64 {
	score := 0.70
	if p.fromJSONLD {
		score += 0.08
	}
	if p.price != nil {
		score += 0.04
	}
	if len(p.images) > 0 {
		score += 0.02
	}
	if p.availability != "" {
		score += 0.01
	}
	return score
}

// metaTags collects property/name → content for every meta element.
func metaTags(html string) map[string]string {
	out := make(map[string]string)
	for _, tag := range metaPattern.FindAllString(html, -1) {
		var key, content string
		for _, m := range attrPattern.FindAllStringSubmatch(tag, -1) {
			attr, val := m[1], m[2]
			if attr == "" {
				attr, val = m[3], m[4]
			}
			switch strings.ToLower(attr) {
			case "property", "name":
				key = val
			case "content":
				content = val
			}
		}
		if key != "" && content != "" {
			if _, seen := out[key]; !seen {
				out[key] = content
			}
		}
	}
	return out
}

func schemaAvailability(raw string) listing.Availability {
	switch schemaToken(raw) {
	case "":
		return ""
	case "instock", "limitedavailability", "instoreonly", "onlineonly":
		return listing.AvailabilityInStock
	case "soldout":
		return listing.AvailabilitySold
	case "outofstock", "backorder", "preorder":
		return listing.AvailabilityOutOfStock
	case "discontinued":
		return listing.AvailabilityUnavailable
	}
	return listing.AvailabilityUnknown
}

func schemaCondition(raw string) listing.Condition {
	switch schemaToken(raw) {
	case "":
		return ""
	case "newcondition":
		return listing.ConditionNew
	case "usedcondition":
		return listing.ConditionUsedGood
	case "refurbishedcondition":
		return listing.ConditionRefurbished
	case "damagedcondition":
		return listing.ConditionUsedAcceptable
	}
	return listing.ConditionUnknown
}

// schemaToken strips the schema.org URL prefix and lowercases the enum leaf.
func schemaToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if i := strings.LastIndexByte(raw, '/'); i >= 0 {
		raw = raw[i+1:]
	}
	return strings.ToLower(raw)
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		d := decimal.NewFromFloat(s)
		return d.String()
	}
	return ""
}

func stringsOf(v any) []string {
	switch s := v.(type) {
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str := stringOf(item); str != "" {
				out = append(out, str)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}

func firstObject(v any) map[string]any {
	switch o := v.(type) {
	case map[string]any:
		return o
	case []any:
		for _, item := range o {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}
