package distribution

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

const (
	// Prices are handled in minor units (kopecks).
	minorPerUnit = 100

	// Generated prices are rounded to the nearest 10 currency units so the
	// resulting line items look like ordinary shop prices.
	roundStep = 10 * minorPerUnit

	maxIterations = 1000
)

// ErrOverflow means the peel loop failed to drain the balance within the
// iteration cap. That is a logic defect, not a data problem, so it is fatal.
var ErrOverflow = errors.New("distribution loop overflow")

type Item struct {
	PriceMinor int64 `json:"price_minor"`
}

// Distributor splits a payment total into natural-looking line-item prices
// that sum exactly to the input. Prices are intentionally randomized; the
// random source is injected so tests stay deterministic.
type Distributor struct {
	singleItemThreshold int64
	minItemPrice        int64
	maxItemPrice        int64
	rnd                 *rand.Rand
}

// New builds a Distributor. Thresholds are given in whole currency units.
func New(singleItemThresholdUnits, minItemPriceUnits, maxItemPriceUnits int64, rnd *rand.Rand) *Distributor {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Distributor{
		singleItemThreshold: singleItemThresholdUnits * minorPerUnit,
		minItemPrice:        minItemPriceUnits * minorPerUnit,
		maxItemPrice:        maxItemPriceUnits * minorPerUnit,
		rnd:                 rnd,
	}
}

// Distribute splits totalMinor into items whose prices sum exactly to it.
// Every price is strictly positive; totals at or below the single-item
// threshold produce exactly one item.
func (d *Distributor) Distribute(totalMinor int64) ([]Item, error) {
	if totalMinor <= 0 {
		return nil, fmt.Errorf("total must be positive, got %d", totalMinor)
	}
	if totalMinor <= d.singleItemThreshold {
		return []Item{{PriceMinor: totalMinor}}, nil
	}

	var items []Item
	remaining := totalMinor

	for i := 0; remaining > 0; i++ {
		if i >= maxIterations {
			return nil, ErrOverflow
		}

		switch {
		case remaining <= d.maxItemPrice:
			items = append(items, Item{PriceMinor: remaining})
			remaining = 0

		case remaining <= d.maxItemPrice+d.minItemPrice:
			// Too small for another full peel: close out with two
			// near-equal items instead of one max plus one sliver.
			half := remaining / 2
			items = append(items, Item{PriceMinor: half}, Item{PriceMinor: remaining - half})
			remaining = 0

		default:
			price := roundToStep(d.randomPrice())
			if price > remaining {
				price = remaining
			}
			if price <= 0 {
				// A zero price would never reduce the balance.
				price = roundStep
			}
			if price > remaining {
				price = remaining
			}
			items = append(items, Item{PriceMinor: price})
			remaining -= price
		}
	}
	return items, nil
}

// randomPrice draws from [min, max] with 20/60/20 weighting toward the low,
// middle and high thirds of the range, so peeled prices cluster around the
// middle instead of spreading uniformly.
func (d *Distributor) randomPrice() int64 {
	span := d.maxItemPrice - d.minItemPrice
	if span <= 0 {
		return d.minItemPrice
	}

	var lo, hi int64
	switch roll := d.rnd.Int63n(100); {
	case roll < 20:
		lo, hi = 0, span*30/100
	case roll < 80:
		lo, hi = span*30/100, span*70/100
	default:
		lo, hi = span*70/100, span
	}
	return d.minItemPrice + lo + d.rnd.Int63n(hi-lo+1)
}

func roundToStep(price int64) int64 {
	return (price + roundStep/2) / roundStep * roundStep
}
