// internal/extract/extractor.go
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/roelvdh/marktwatch/internal/scrape"
	"github.com/roelvdh/marktwatch/pkg/models"
)

// Extractor turns a loaded result page into listing candidates, tolerant of
// markup drift through layered selector fallbacks.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract parses pageHTML and returns the listings found inside the container
// matched by containerSelector. The target name is stamped on every listing.
//
// Fails with a CONTENT_NOT_FOUND error when the container selector matches
// nothing; individual missing fields are never fatal.
func (e *Extractor) Extract(pageHTML, pageURL, containerSelector, target string) ([]models.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, scrape.NewContentNotFoundError("failed to parse page HTML", err)
	}

	container := doc.Find(containerSelector)
	if container.Length() == 0 {
		return nil, scrape.NewContentNotFoundError(
			"listings container not found: "+containerSelector, nil)
	}

	items := findItems(container)
	if items == nil {
		log.Warn().
			Str("target", target).
			Str("container", containerSelector).
			Msg("Container matched but no item pattern yielded results")
		return nil, nil
	}

	origin := pageOrigin(pageURL)

	var listings []models.Listing
	items.Each(func(i int, sel *goquery.Selection) {
		l := extractItem(sel, origin, target)
		if l.Title == "" {
			log.Debug().Int("index", i).Msg("Dropping item without title")
			return
		}
		if l.URL == "" {
			log.Warn().Str("title", l.Title).Msg("Listing has no URL")
		}
		listings = append(listings, l)
	})

	log.Debug().
		Str("target", target).
		Int("items", items.Length()).
		Int("kept", len(listings)).
		Msg("Extraction completed")

	return listings, nil
}

func extractItem(sel *goquery.Selection, origin, target string) models.Listing {
	l := models.Listing{
		Target:      target,
		Title:       firstText(sel, titleRules),
		Price:       firstText(sel, priceRules),
		Description: firstText(sel, descriptionRules),
		Seller:      firstText(sel, sellerRules),
		Location:    firstText(sel, locationRules),
		Posted:      firstText(sel, dateRules),
	}

	l.URL = resolveRef(origin, firstAttr(sel, linkRules, "href"))
	l.ImageURL = resolveRef(origin, firstAttr(sel, imageRules, "src"))

	sel.Find(attributeSelector).Each(func(_ int, attr *goquery.Selection) {
		if text := strings.TrimSpace(attr.Text()); text != "" {
			l.Attributes = append(l.Attributes, text)
		}
	})
	l.Condition = attributeContaining(l.Attributes, "conditie")
	l.Category = attributeContaining(l.Attributes, "categorie")

	return l
}

// attributeContaining returns the first attribute whose lowercased text
// contains the given substring, or empty when none does.
func attributeContaining(attrs []string, substr string) string {
	for _, a := range attrs {
		if strings.Contains(strings.ToLower(a), substr) {
			return a
		}
	}
	return ""
}
