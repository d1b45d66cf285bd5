package extract

import (
	"bgprices/internal/catalog"
	"bgprices/internal/components/assert"
	"bgprices/internal/components/telemetry"
	"bgprices/internal/pricing"
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	zatuTitleSelector     = "h1.product_title"
	zatuSalePriceSelector = "p.price ins .woocommerce-Price-amount"
	zatuPriceSelector     = "p.price .woocommerce-Price-amount"
	zatuButtonSelector    = "form.cart .single_add_to_cart_button"
)

var zatuAvailability = map[string]pricing.Availability{
	"Add to basket":   pricing.AvailabilityAvailable,
	"Notify Me":       pricing.AvailabilityUnavailable,
	"Place Backorder": pricing.AvailabilityUnavailable,
}

// Zatu extracts the listed price of a zatu product page, the price is a
// single literal with no fee on top.
type Zatu struct {
	tel telemetry.API
}

func NewZatu(tel telemetry.API) Zatu {
	assert.NotNil(tel)
	return Zatu{tel: telemetry.NewScopedAPI("zatu", tel)}
}

func (Zatu) Source() pricing.Source {
	return pricing.SourceZatu
}

func (z Zatu) Extract(ctx context.Context, raw []byte, entry catalog.Entry) (pricing.Record, error) {
	src := z.Source()

	doc, err := parseDocument(raw)
	if err != nil {
		return pricing.Record{}, fail(entry, src, "parse html", err)
	}
	checkTitle(z.tel, entry, src, firstText(doc.Find(zatuTitleSelector)))

	// a discounted product lists the old price struck through before the sale price
	priceText := firstText(doc.Find(zatuSalePriceSelector))
	if priceText == "" {
		priceText = firstText(doc.Find(zatuPriceSelector))
	}
	if priceText == "" {
		return pricing.Record{}, fail(entry, src, "no price element", nil)
	}
	base, err := ParsePrice(priceText)
	if err != nil {
		return pricing.Record{}, fail(entry, src, "price", err)
	}

	label := firstText(doc.Find(zatuButtonSelector))
	availability, ok := zatuAvailability[label]
	if !ok {
		return pricing.Record{}, fail(entry, src, fmt.Sprintf("unexpected basket button '%s'", label), nil)
	}

	return pricing.Record{
		Game:         entry.Name,
		Source:       src,
		Price:        pricing.NewPrice(base, decimal.Zero),
		Availability: availability,
	}, nil
}
