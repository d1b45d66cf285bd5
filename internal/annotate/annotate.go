// Package annotate compares a freshly scraped price with the previous
// snapshot and decides how the cell should be highlighted.
package annotate

import (
	"bgprices/internal/pricing"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Mode decides how the difference between two prices is measured.
type Mode int

const (
	// ModePercentage compares (new - old) * 100 / old with the threshold.
	ModePercentage Mode = iota
	// ModeAbsolute compares new - old with the threshold.
	ModeAbsolute
)

func (m Mode) String() string {
	if m == ModeAbsolute {
		return "absolute"
	}
	return "percentage"
}

// ParseMode accepts "percentage" (the default when empty) and "absolute".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "percentage", "percent":
		return ModePercentage, nil
	case "absolute":
		return ModeAbsolute, nil
	}
	return ModePercentage, fmt.Errorf("unknown threshold mode '%s'", s)
}

type Classification int

const (
	// ClassificationNone means there was nothing to compare against.
	ClassificationNone Classification = iota
	ClassificationUnchanged
	ClassificationIncreased
	ClassificationDecreased
)

func (c Classification) String() string {
	switch c {
	case ClassificationUnchanged:
		return "unchanged"
	case ClassificationIncreased:
		return "increased"
	case ClassificationDecreased:
		return "decreased"
	}
	return "none"
}

func ParseClassification(s string) Classification {
	switch s {
	case "unchanged":
		return ClassificationUnchanged
	case "increased":
		return ClassificationIncreased
	case "decreased":
		return ClassificationDecreased
	}
	return ClassificationNone
}

// Style is the presentation tag handed to whatever renders a snapshot.
type Style string

const (
	StyleNone    Style = "none"
	StyleDefault Style = "default"
	StyleRaised  Style = "raised"
	StyleLowered Style = "lowered"
	StyleFlagged Style = "flagged"
)

// Annotation is attached to one price cell.
type Annotation struct {
	Classification    Classification
	Style             Style
	AvailabilityStyle Style
}

// Neutral is the annotation of a cell that could not be compared.
func Neutral() Annotation {
	return Annotation{
		Classification:    ClassificationNone,
		Style:             StyleNone,
		AvailabilityStyle: StyleDefault,
	}
}

func styleOf(c Classification) Style {
	switch c {
	case ClassificationIncreased:
		return StyleRaised
	case ClassificationDecreased:
		return StyleLowered
	case ClassificationUnchanged:
		return StyleDefault
	}
	return StyleNone
}

// AvailabilityStyle flags unavailable games, it does not depend on the price.
func AvailabilityStyle(a pricing.Availability) Style {
	if a == pricing.AvailabilityUnavailable {
		return StyleFlagged
	}
	return StyleDefault
}

var hundred = decimal.NewFromInt(100)

// Annotator classifies price movements against a fixed threshold.
type Annotator struct {
	mode      Mode
	threshold decimal.Decimal
}

// NewAnnotator creates an Annotator, the threshold is an amount of currency in
// absolute mode and a percentage (20 means 20%) in percentage mode.
func NewAnnotator(mode Mode, threshold decimal.Decimal) (Annotator, error) {
	if threshold.IsNegative() {
		return Annotator{}, fmt.Errorf("threshold must not be negative, got %s", threshold)
	}
	return Annotator{mode: mode, threshold: threshold}, nil
}

func (a Annotator) Mode() Mode {
	return a.mode
}

func (a Annotator) Threshold() decimal.Decimal {
	return a.threshold
}

// Classify returns ClassificationNone when either value is absent, or when
// the old value is zero in percentage mode.
func (a Annotator) Classify(newValue, oldValue decimal.NullDecimal) Classification {
	if !newValue.Valid || !oldValue.Valid {
		return ClassificationNone
	}

	delta := newValue.Decimal.Sub(oldValue.Decimal)
	if a.mode == ModePercentage {
		if oldValue.Decimal.IsZero() {
			return ClassificationNone
		}
		delta = delta.Mul(hundred).Div(oldValue.Decimal)
	}

	switch {
	case delta.GreaterThan(a.threshold):
		return ClassificationIncreased
	case delta.LessThan(a.threshold.Neg()):
		return ClassificationDecreased
	}
	return ClassificationUnchanged
}

// Annotate builds the price annotation, the availability axis is left at
// the default style, see AnnotateRecord.
func (a Annotator) Annotate(newValue, oldValue decimal.NullDecimal) Annotation {
	c := a.Classify(newValue, oldValue)
	return Annotation{
		Classification:    c,
		Style:             styleOf(c),
		AvailabilityStyle: StyleDefault,
	}
}

// AnnotateRecord annotates both axes of a freshly extracted record.
func (a Annotator) AnnotateRecord(rec pricing.Record, oldValue decimal.NullDecimal) Annotation {
	ann := a.Annotate(pricing.TotalOf(rec.Price), oldValue)
	ann.AvailabilityStyle = AvailabilityStyle(rec.Availability)
	return ann
}

// Restore rebuilds the annotation of a persisted cell.
func Restore(c Classification, a pricing.Availability) Annotation {
	return Annotation{
		Classification:    c,
		Style:             styleOf(c),
		AvailabilityStyle: AvailabilityStyle(a),
	}
}
