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
	bgpTitleSelector      = "h1"
	bgpVendorSelector     = "#vendorlist div.vendoritem"
	bgpBaseSelector       = "div.price"
	bgpFeeSelector        = "div.shipping"
	bgpGrandTotalSelector = "div.total.grand-total"
	bgpStockSelector      = "div.vendorstock > span"
)

// BoardGamePrices extracts the best offer from a boardgameprices.co.uk item
// page. Vendors are listed cheapest first, the first vendor row is the offer.
type BoardGamePrices struct {
	// DefaultFee is added to the base price when the vendor row does not
	// list a shipping cost.
	DefaultFee decimal.Decimal
	tel        telemetry.API
}

func NewBoardGamePrices(defaultFee decimal.Decimal, tel telemetry.API) BoardGamePrices {
	assert.NotNil(tel)
	return BoardGamePrices{
		DefaultFee: defaultFee,
		tel:        telemetry.NewScopedAPI("boardgameprices", tel),
	}
}

func (BoardGamePrices) Source() pricing.Source {
	return pricing.SourceBoardGamePrices
}

func (b BoardGamePrices) Extract(ctx context.Context, raw []byte, entry catalog.Entry) (pricing.Record, error) {
	src := b.Source()

	doc, err := parseDocument(raw)
	if err != nil {
		return pricing.Record{}, fail(entry, src, "parse html", err)
	}
	checkTitle(b.tel, entry, src, firstText(doc.Find(bgpTitleSelector)))

	vendor := doc.Find(bgpVendorSelector).First()
	if vendor.Length() == 0 {
		return pricing.Record{}, fail(entry, src, "no vendor listed", nil)
	}

	var price pricing.Price
	baseText := firstText(vendor.Find(bgpBaseSelector))
	if baseText != "" {
		price.Base, err = ParsePrice(baseText)
		if err != nil {
			return pricing.Record{}, fail(entry, src, "base price", err)
		}

		price.Fee = b.DefaultFee
		feeText := firstText(vendor.Find(bgpFeeSelector))
		if feeText != "" {
			price.Fee, err = ParsePrice(feeText)
			if err != nil {
				return pricing.Record{}, fail(entry, src, "shipping fee", err)
			}
		}
	} else {
		// older layout only shows the total with shipping included
		totalText := firstText(vendor.Find(bgpGrandTotalSelector))
		if totalText == "" {
			return pricing.Record{}, fail(entry, src, "no price element", nil)
		}
		price.Base, err = ParsePrice(totalText)
		if err != nil {
			return pricing.Record{}, fail(entry, src, "grand total", err)
		}
		price.Fee = decimal.Zero
	}

	stock := firstText(vendor.Find(bgpStockSelector))
	var availability pricing.Availability
	switch stock {
	case "Yes":
		availability = pricing.AvailabilityAvailable
	case "No":
		availability = pricing.AvailabilityUnavailable
	default:
		return pricing.Record{}, fail(entry, src, fmt.Sprintf("unexpected stock indicator '%s'", stock), nil)
	}

	return pricing.Record{
		Game:         entry.Name,
		Source:       src,
		Price:        &price,
		Availability: availability,
	}, nil
}
