// Package extract reads a price and an availability off a product page.
//
// Selectors are tied to the current markup of each site, when a site changes
// its layout extraction fails loudly instead of guessing.
package extract

import (
	"bgprices/internal/catalog"
	"bgprices/internal/components/telemetry"
	"bgprices/internal/pricing"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
	"github.com/shopspring/decimal"
)

const (
	report_extract_title = "extract.title"
)

// Extractor is implemented once per source.
type Extractor interface {
	Source() pricing.Source
	Extract(ctx context.Context, doc []byte, entry catalog.Entry) (pricing.Record, error)
}

// Error is returned when the page does not look like expected.
type Error struct {
	Game   string
	Source pricing.Source
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s for '%s': %s: %v", e.Source, e.Game, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s for '%s': %s", e.Source, e.Game, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(entry catalog.Entry, src pricing.Source, reason string, err error) *Error {
	return &Error{Game: entry.Name, Source: src, Reason: reason, Err: err}
}

func parseDocument(doc []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(doc))
}

var priceRegex = regexp.MustCompile(`[£$€]\s*(\d{1,3}(?:,\d{3})+|\d+)(\.\d+)?`)

// ParsePrice reads the first "<currency symbol><digits>[.<fraction>]" in text.
// The word "free" (any case) is read as zero.
func ParsePrice(text string) (decimal.Decimal, error) {
	groups := priceRegex.FindStringSubmatch(text)
	if len(groups) < 3 {
		if strings.EqualFold(normalizeText(text), "free") {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("no price in '%s'", normalizeText(text))
	}
	digits := strings.ReplaceAll(groups[1], ",", "") + groups[2]
	return decimal.NewFromString(digits)
}

var titleSimilarityThreshold = 0.7

// checkTitle warns when the product page seems to be about another game,
// which usually means the identifier in the catalog is stale.
func checkTitle(tel telemetry.API, entry catalog.Entry, src pricing.Source, title string) {
	title = normalizeText(title)
	if title == "" {
		return
	}
	similarity := matchr.JaroWinkler(
		strings.ToLower(entry.Name),
		strings.ToLower(title),
		false,
	)
	if similarity < titleSimilarityThreshold && !strings.Contains(strings.ToLower(title), strings.ToLower(entry.Name)) {
		tel.ReportWarning(
			report_extract_title,
			telemetry.KV{Key: "game", Value: entry.Name},
			telemetry.KV{Key: "source", Value: string(src)},
			telemetry.KV{Key: "title", Value: title},
			telemetry.KV{Key: "similarity", Value: similarity},
		)
	}
}
