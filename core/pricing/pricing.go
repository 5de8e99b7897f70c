// Package pricing computes what a product costs in a given format at a
// given instant. It has no side effects; callers pass the clock in.
package pricing

import (
	"strconv"
	"time"

	"github.com/irsalhamdi/e-commerce-media/core/product"
)

type DiscountType string

const (
	DiscountNone    DiscountType = ""
	DiscountFree    DiscountType = "free"
	DiscountPercent DiscountType = "percentage"
	DiscountFixed   DiscountType = "fixed"
)

type Price struct {
	OriginalPrice   int          `json:"originalPrice"`
	FinalPrice      int          `json:"finalPrice"`
	IsFree          bool         `json:"isFree"`
	DiscountPercent int          `json:"discountPercent"`
	Savings         int          `json:"savings"`
	DiscountType    DiscountType `json:"discountType,omitempty"`
}

// BasePrice is the undiscounted price of p in format f.
func BasePrice(p product.Product, f product.Format) int {
	switch f {
	case product.FormatPDF:
		return p.PDFPrice
	case product.FormatAudio:
		return p.AudioPrice
	case product.FormatBundle:
		if p.BundlePrice > 0 {
			return p.BundlePrice
		}
		return p.PDFPrice + p.AudioPrice
	case product.FormatSummary:
		if p.SummaryPrice > 0 {
			return p.SummaryPrice
		}
		return p.AudioPrice
	}
	return 0
}

// FreeNow is the free-promotion predicate.
func FreeNow(p product.Product, now time.Time) bool {
	return p.IsFree && (p.FreeUntil == nil || p.FreeUntil.After(now))
}

// DiscountActive reports whether a discount or limited offer is running.
func DiscountActive(p product.Product, now time.Time) bool {
	has := p.DiscountPercent > 0 || p.DiscountAmount > 0 || p.LimitedOffer
	return has && (p.DiscountUntil == nil || p.DiscountUntil.After(now))
}

func Resolve(p product.Product, f product.Format, now time.Time) Price {
	original := BasePrice(p, f)

	if FreeNow(p, now) {
		return Price{
			OriginalPrice:   original,
			FinalPrice:      0,
			IsFree:          true,
			DiscountPercent: 100,
			Savings:         original,
			DiscountType:    DiscountFree,
		}
	}

	final := original
	kind := DiscountNone

	if DiscountActive(p, now) {
		switch {
		case p.DiscountPercent > 0:
			pct := p.DiscountPercent
			if pct > 100 {
				pct = 100
			}
			final = roundHalfUp(original*(100-pct), 100)
			kind = DiscountPercent
		case p.DiscountAmount > 0:
			final = original - p.DiscountAmount
			if final < 0 {
				final = 0
			}
			kind = DiscountFixed
		}
	}

	savings := original - final
	pct := 0
	if original > 0 {
		pct = roundHalfUp(savings*100, original)
	}

	return Price{
		OriginalPrice:   original,
		FinalPrice:      final,
		IsFree:          final == 0,
		DiscountPercent: pct,
		Savings:         savings,
		DiscountType:    kind,
	}
}

// Total sums the final prices.
func Total(prices ...Price) int {
	var tot int
	for _, p := range prices {
		tot += p.FinalPrice
	}
	return tot
}

// HasActivePromotion reports whether any promotion should be advertised.
func HasActivePromotion(p product.Product, now time.Time) bool {
	return FreeNow(p, now) || DiscountActive(p, now)
}

type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// PromotionalBadge describes the promotion on the product's ebook price, or
// nil when nothing is running.
func PromotionalBadge(p product.Product, now time.Time) *Badge {
	pr := Resolve(p, product.FormatPDF, now)

	switch {
	case pr.DiscountType == DiscountFree:
		return &Badge{Text: "FREE", Color: "green"}
	case pr.DiscountPercent >= 50:
		return &Badge{Text: strconv.Itoa(pr.DiscountPercent) + "% OFF", Color: "red"}
	case pr.DiscountPercent > 0:
		return &Badge{Text: strconv.Itoa(pr.DiscountPercent) + "% OFF", Color: "orange"}
	case p.LimitedOffer && DiscountActive(p, now):
		text := p.OfferText
		if text == "" {
			text = "LIMITED TIME"
		}
		return &Badge{Text: text, Color: "purple"}
	}
	return nil
}

// roundHalfUp divides non-negative n by d rounding halves up.
func roundHalfUp(n, d int) int {
	return (2*n + d) / (2 * d)
}
