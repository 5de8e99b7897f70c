package cart

import (
	"testing"
	"time"

	"github.com/irsalhamdi/e-commerce-media/core/product"
)

func TestPrice(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)

	products := map[string]product.Product{
		"free": {ID: "free", PDFPrice: 40, IsFree: true, Types: product.Types{product.TypeEbook}},
		"paid": {ID: "paid", AudioPrice: 200, DiscountAmount: 50, DiscountUntil: &until, Types: product.Types{product.TypeAudiobook}},
	}
	items := []Item{
		{ID: "1", ProductID: "free", Format: product.FormatPDF},
		{ID: "2", ProductID: "paid", Format: product.FormatAudio},
		{ID: "3", ProductID: "gone", Format: product.FormatPDF},
	}

	c := Price(items, products, now)

	if c.ItemCount != 2 {
		t.Fatalf("got %d lines, want 2", c.ItemCount)
	}
	if c.Subtotal != 240 || c.Total != 150 || c.Savings != 90 {
		t.Fatalf("got subtotal %d total %d savings %d", c.Subtotal, c.Total, c.Savings)
	}
	if !c.Items[0].Price.IsFree {
		t.Fatal("free product line should be free")
	}
}

func TestPriceIsLive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)

	products := map[string]product.Product{
		"p": {ID: "p", PDFPrice: 100, DiscountPercent: 20, DiscountUntil: &until},
	}
	items := []Item{{ID: "1", ProductID: "p", Format: product.FormatPDF}}

	if got := Price(items, products, now).Total; got != 80 {
		t.Fatalf("during promotion: got %d, want 80", got)
	}
	if got := Price(items, products, until.Add(time.Second)).Total; got != 100 {
		t.Fatalf("after promotion: got %d, want 100", got)
	}
}

func TestPriceEmpty(t *testing.T) {
	c := Price(nil, nil, time.Now())
	if c.Items == nil || len(c.Items) != 0 || c.Total != 0 {
		t.Fatalf("unexpected empty cart %+v", c)
	}
}
