// Package pricing holds the values extracted from a price comparison page.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Source identifies a price comparison website.
type Source string

const (
	SourceBoardGamePrices Source = "boardgameprices"
	SourceZatu            Source = "zatu"
)

// Sources is the fixed column order of every snapshot.
var Sources = []Source{SourceBoardGamePrices, SourceZatu}

// DisplayName is the name used in spreadsheet headers and reports.
func (s Source) DisplayName() string {
	switch s {
	case SourceBoardGamePrices:
		return "BoardGamePrices"
	case SourceZatu:
		return "Zatu"
	}
	return string(s)
}

func ParseSource(s string) (Source, error) {
	for _, src := range Sources {
		if string(src) == s {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source '%s'", s)
}

type Availability int

const (
	AvailabilityUnknown Availability = iota
	AvailabilityAvailable
	AvailabilityUnavailable
)

func (a Availability) String() string {
	switch a {
	case AvailabilityAvailable:
		return "available"
	case AvailabilityUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// ParseAvailability is the inverse of Availability.String, anything
// unrecognized (including the empty string) is unknown.
func ParseAvailability(s string) Availability {
	switch s {
	case "available":
		return AvailabilityAvailable
	case "unavailable":
		return AvailabilityUnavailable
	}
	return AvailabilityUnknown
}

// Price is a retail price split into the item price and the fee charged on
// top of it (shipping), the total is never stored.
type Price struct {
	Base decimal.Decimal
	Fee  decimal.Decimal
}

func NewPrice(base, fee decimal.Decimal) *Price {
	return &Price{Base: base, Fee: fee}
}

func (p Price) Total() decimal.Decimal {
	return p.Base.Add(p.Fee)
}

func (p Price) String() string {
	return p.Total().StringFixed(2)
}

// TotalOf returns the total of an optional price.
func TotalOf(p *Price) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(p.Total())
}

// Record is what was read off one page for one game.
type Record struct {
	Game         string
	Source       Source
	Price        *Price
	Availability Availability
}
