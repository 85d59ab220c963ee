// internal/extract/selectors.go
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// Item node patterns, in priority order: exact class, class-contains, bare
// tag. The first pattern that yields any matches wins; patterns are never
// unioned, so a loose fallback cannot pollute an exact match.
var itemPatterns = []string{
	"li.hz-Listing",
	`li[class*="Listing"]`,
	`div[class*="listing"]`,
	"li",
}

// fieldRule is one extraction strategy for a field: a selector plus which
// part of the match to read. Rules run in order; the first non-empty result
// wins, and an unmatched field simply stays empty.
type fieldRule struct {
	selector string
}

var (
	titleRules = []fieldRule{
		{"h3.hz-Listing-title"},
		{`[class*="Listing-title"]`},
		{"h3"},
		{"h2"},
	}
	priceRules = []fieldRule{
		{"p.hz-Listing-price"},
		{`[class*="Listing-price"]`},
		{`[class*="price"]`},
	}
	descriptionRules = []fieldRule{
		{"p.hz-Listing-description"},
		{`[class*="Listing-description"]`},
		{`[class*="description"]`},
	}
	sellerRules = []fieldRule{
		{"span.hz-Listing-seller-name"},
		{`[class*="seller-name"]`},
		{`[class*="seller"]`},
	}
	locationRules = []fieldRule{
		{"span.hz-Listing-location"},
		{`[class*="Listing-location"]`},
		{`[class*="location"]`},
	}
	dateRules = []fieldRule{
		{"span.hz-Listing-date"},
		{`[class*="Listing-date"]`},
		{`[class*="date"]`},
	}
	linkRules = []fieldRule{
		{"a.hz-Listing-coverLink"},
		{`a[class*="coverLink"]`},
		{"a[href]"},
	}
	imageRules = []fieldRule{
		{"img.hz-Listing-image"},
		{`img[class*="image"]`},
		{"img[src]"},
	}
)

// attributeSelector matches the free-text attribute tags on an item card
// (condition, category, delivery options and the like).
const attributeSelector = `span.hz-Attribute, [class*="Attribute"] span, [class*="attribute"]`

// findItems enumerates item nodes inside the container using the first
// pattern that matches anything. Returns nil when no pattern matches.
func findItems(container *goquery.Selection) *goquery.Selection {
	for _, pattern := range itemPatterns {
		if items := container.Find(pattern); items.Length() > 0 {
			log.Debug().Str("pattern", pattern).Int("count", items.Length()).Msg("Item pattern matched")
			return items
		}
	}
	return nil
}

// firstText applies rules in order and returns the first non-empty trimmed
// text match.
func firstText(sel *goquery.Selection, rules []fieldRule) string {
	for _, r := range rules {
		if m := sel.Find(r.selector).First(); m.Length() > 0 {
			if text := strings.TrimSpace(m.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// firstAttr applies rules in order and returns the first non-empty attribute
// value.
func firstAttr(sel *goquery.Selection, rules []fieldRule, attr string) string {
	for _, r := range rules {
		if m := sel.Find(r.selector).First(); m.Length() > 0 {
			if v, ok := m.Attr(attr); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// pageOrigin reduces a page URL to its scheme+host origin for resolving
// site-relative references.
func pageOrigin(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// resolveRef resolves a possibly-relative reference against the page origin.
// Absolute references pass through; a relative reference with no usable origin
// is dropped rather than stored broken.
func resolveRef(origin, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		log.Warn().Str("ref", ref).Err(err).Msg("Dropping unparseable reference")
		return ""
	}
	if u.IsAbs() {
		return ref
	}
	if origin == "" {
		log.Warn().Str("ref", ref).Msg("Dropping relative reference without page origin")
		return ""
	}
	base, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
