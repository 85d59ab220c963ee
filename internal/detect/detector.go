// Package detect decides, per target, whether extracted content changed and
// which listings are genuinely new.
package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/roelvdh/marktwatch/pkg/models"
)

// Result is the outcome of comparing an extracted batch against the previously
// stored snapshot for the same target.
type Result struct {
	Changed  bool
	NewItems []models.Listing
}

// Fingerprint computes a stable content hash over the (title, price, url)
// triples of a listing set. Input order is irrelevant: triples are sorted by
// URL ascending before hashing, so the same set always produces the same hash.
// An empty set yields the empty string.
func Fingerprint(listings []models.Listing) string {
	if len(listings) == 0 {
		return ""
	}

	triples := make([]models.ListingKey, len(listings))
	for i, l := range listings {
		triples[i] = l.Key()
	}
	sort.Slice(triples, func(i, j int) bool {
		if triples[i].URL != triples[j].URL {
			return triples[i].URL < triples[j].URL
		}
		// Same URL (possibly empty): fall back to title then price so the
		// ordering stays deterministic.
		if triples[i].Title != triples[j].Title {
			return triples[i].Title < triples[j].Title
		}
		return triples[i].Price < triples[j].Price
	})

	h := sha256.New()
	for _, t := range triples {
		h.Write([]byte(t.Title))
		h.Write([]byte{0x1f})
		h.Write([]byte(t.Price))
		h.Write([]byte{0x1f})
		h.Write([]byte(t.URL))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Diff compares the extracted batch against the previous snapshot.
//
// First-ever check (no previous snapshot): everything is new. Differing
// fingerprints: new items are those whose (title, price, url) triple does not
// appear in the previous snapshot. Equal fingerprints: nothing changed.
func Diff(previous, extracted []models.Listing) Result {
	if len(previous) == 0 {
		return Result{
			Changed:  len(extracted) > 0,
			NewItems: append([]models.Listing(nil), extracted...),
		}
	}

	prevFP := Fingerprint(previous)
	currFP := Fingerprint(extracted)
	if prevFP == currFP {
		return Result{Changed: false}
	}

	known := make(map[models.ListingKey]bool, len(previous))
	for _, l := range previous {
		known[l.Key()] = true
	}

	var fresh []models.Listing
	for _, l := range extracted {
		if !known[l.Key()] {
			fresh = append(fresh, l)
		}
	}
	return Result{Changed: true, NewItems: fresh}
}

// Summary renders a short log-friendly description of new item titles.
func Summary(items []models.Listing) string {
	titles := make([]string, 0, len(items))
	for _, l := range items {
		titles = append(titles, l.Title)
	}
	return strings.Join(titles, ", ")
}
