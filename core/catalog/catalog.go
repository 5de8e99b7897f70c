// Package catalog presents products to shoppers with their live prices and
// lets administrators manage them.
package catalog

import (
	"context"
	"time"

	"github.com/irsalhamdi/e-commerce-media/core/pricing"
	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/storage"
	"github.com/irsalhamdi/e-commerce-media/validate"
)

var formats = []product.Format{
	product.FormatPDF,
	product.FormatAudio,
	product.FormatBundle,
	product.FormatSummary,
}

// Listing is a product with the price of every format it offers.
type Listing struct {
	product.Product
	Prices map[product.Format]pricing.Price `json:"prices"`
	Badge  *pricing.Badge                   `json:"badge,omitempty"`
}

func Offer(p product.Product, now time.Time) Listing {
	l := Listing{
		Product: p,
		Prices:  make(map[product.Format]pricing.Price, len(formats)),
		Badge:   pricing.PromotionalBadge(p, now),
	}
	for _, f := range formats {
		if p.Types.Offers(f) {
			l.Prices[f] = pricing.Resolve(p, f, now)
		}
	}
	return l
}

func OfferAll(ps []product.Product, now time.Time) []Listing {
	ls := make([]Listing, len(ps))
	for i, p := range ps {
		ls[i] = Offer(p, now)
	}
	return ls
}

// ObjectStore removes the files of deleted products.
type ObjectStore interface {
	DeleteAll(ctx context.Context, prefix string) (int, error)
}

// NewProduct turns a validated creation request into a product.
func NewProduct(in product.ProductNew, now time.Time) (product.Product, error) {
	types, err := product.ParseTypes(in.Types)
	if err != nil {
		return product.Product{}, err
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}

	return product.Product{
		ID:              validate.GenerateID(),
		Slug:            in.Slug,
		Title:           in.Title,
		Author:          in.Author,
		Description:     in.Description,
		Types:           types,
		PDFPrice:        in.PDFPrice,
		AudioPrice:      in.AudioPrice,
		BundlePrice:     in.BundlePrice,
		SummaryPrice:    in.SummaryPrice,
		IsFree:          in.IsFree,
		FreeUntil:       in.FreeUntil,
		DiscountPercent: in.DiscountPercent,
		DiscountAmount:  in.DiscountAmount,
		DiscountUntil:   in.DiscountUntil,
		LimitedOffer:    in.LimitedOffer,
		OfferText:       in.OfferText,
		StoragePath:     storage.BasePath(in.Slug),
		Active:          active,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}
