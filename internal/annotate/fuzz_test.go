package annotate

import (
	"testing"

	"github.com/shopspring/decimal"
)

func FuzzClassify(f *testing.F) {
	f.Add(int64(1000), int64(1201), int64(20), false)
	f.Add(int64(0), int64(5), int64(10), false)
	f.Add(int64(500), int64(400), int64(50), true)

	f.Fuzz(func(t *testing.T, oldCents, newCents, threshold int64, absolute bool) {
		if threshold < 0 {
			threshold = -threshold
		}
		if threshold < 0 || oldCents < 0 || newCents < 0 {
			return
		}
		mode := ModePercentage
		if absolute {
			mode = ModeAbsolute
		}
		a, err := NewAnnotator(mode, decimal.NewFromInt(threshold))
		if err != nil {
			t.Fatal(err)
		}

		oldValue := decimal.NewNullDecimal(decimal.New(oldCents, -2))
		newValue := decimal.NewNullDecimal(decimal.New(newCents, -2))
		c := a.Classify(newValue, oldValue)

		if mode == ModePercentage && oldCents == 0 {
			if c != ClassificationNone {
				t.Fatalf("zero baseline classified as %s", c)
			}
			return
		}
		if c == ClassificationNone {
			t.Fatalf("present values classified as none")
		}
		if c == ClassificationIncreased && newCents <= oldCents {
			t.Fatalf("%d -> %d classified as increased", oldCents, newCents)
		}
		if c == ClassificationDecreased && newCents >= oldCents {
			t.Fatalf("%d -> %d classified as decreased", oldCents, newCents)
		}
		if newCents == oldCents && c != ClassificationUnchanged {
			t.Fatalf("equal values classified as %s", c)
		}
	})
}
