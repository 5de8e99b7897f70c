package product

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
)

// Format is what a customer buys: a rendition of a product.
type Format string

const (
	FormatPDF     Format = "PDF"
	FormatAudio   Format = "AUDIO"
	FormatBundle  Format = "BUNDLE"
	FormatSummary Format = "SUMMARY"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatPDF, FormatAudio, FormatBundle, FormatSummary:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

func (f *Format) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// IncludesAudio reports whether the format grants access to audio content.
func (f Format) IncludesAudio() bool {
	return f == FormatAudio || f == FormatBundle || f == FormatSummary
}

// ContentType is a kind of content a product carries. A product carries a
// set of them.
type ContentType string

const (
	TypeEbook     ContentType = "EBOOK"
	TypeAudiobook ContentType = "AUDIOBOOK"
	TypeSummary   ContentType = "SUMMARY"
)

func ParseContentType(s string) (ContentType, error) {
	switch t := ContentType(s); t {
	case TypeEbook, TypeAudiobook, TypeSummary:
		return t, nil
	}
	return "", fmt.Errorf("unknown content type %q", s)
}

// Types is a set of content types, stored as a text array.
type Types []ContentType

func ParseTypes(ss []string) (Types, error) {
	if len(ss) == 0 {
		return nil, fmt.Errorf("at least one content type is required")
	}
	var ts Types
	for _, s := range ss {
		t, err := ParseContentType(s)
		if err != nil {
			return nil, err
		}
		ts = ts.With(t)
	}
	return ts, nil
}

func (ts Types) Has(t ContentType) bool {
	for _, v := range ts {
		if v == t {
			return true
		}
	}
	return false
}

// With returns the set extended with t, kept sorted.
func (ts Types) With(t ContentType) Types {
	if ts.Has(t) {
		return ts
	}
	out := append(Types{}, ts...)
	out = append(out, t)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Offers reports whether a product with these content types can be sold in
// format f.
func (ts Types) Offers(f Format) bool {
	switch f {
	case FormatPDF:
		return ts.Has(TypeEbook)
	case FormatAudio:
		return ts.Has(TypeAudiobook) || ts.Has(TypeSummary)
	case FormatBundle:
		return ts.Has(TypeEbook) && ts.Has(TypeAudiobook)
	case FormatSummary:
		return ts.Has(TypeSummary)
	}
	return false
}

func (ts Types) Value() (driver.Value, error) {
	ss := make(pq.StringArray, len(ts))
	for i, t := range ts {
		ss[i] = string(t)
	}
	return ss.Value()
}

// Scan rejects values outside the closed set instead of trusting storage.
func (ts *Types) Scan(src any) error {
	var ss pq.StringArray
	if err := ss.Scan(src); err != nil {
		return err
	}
	out, err := ParseTypes(ss)
	if err != nil {
		return fmt.Errorf("scanning product types: %w", err)
	}
	*ts = out
	return nil
}

type Product struct {
	ID              string     `json:"id" db:"product_id"`
	Slug            string     `json:"slug" db:"slug"`
	Title           string     `json:"title" db:"title"`
	Author          string     `json:"author" db:"author"`
	Description     string     `json:"description" db:"description"`
	Types           Types      `json:"types" db:"types"`
	PDFPrice        int        `json:"pdfPrice" db:"pdf_price"`
	AudioPrice      int        `json:"audioPrice" db:"audio_price"`
	BundlePrice     int        `json:"bundlePrice" db:"bundle_price"`
	SummaryPrice    int        `json:"summaryPrice" db:"summary_price"`
	IsFree          bool       `json:"isFree" db:"is_free"`
	FreeUntil       *time.Time `json:"freeUntil" db:"free_until"`
	DiscountPercent int        `json:"discountPercent" db:"discount_percent"`
	DiscountAmount  int        `json:"discountAmount" db:"discount_amount"`
	DiscountUntil   *time.Time `json:"discountUntil" db:"discount_until"`
	LimitedOffer    bool       `json:"limitedOffer" db:"limited_offer"`
	OfferText       string     `json:"offerText" db:"offer_text"`
	StoragePath     string     `json:"-" db:"storage_path"`
	CoverKey        string     `json:"coverKey" db:"cover_key"`
	DocumentKey     string     `json:"-" db:"document_key"`
	AudioKey        string     `json:"-" db:"audio_key"`
	SampleKey       string     `json:"sampleKey" db:"sample_key"`
	SummaryKey      string     `json:"-" db:"summary_key"`
	Active          bool       `json:"active" db:"active"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

type ProductNew struct {
	Slug            string     `json:"slug" validate:"required,slug,max=120"`
	Title           string     `json:"title" validate:"required"`
	Author          string     `json:"author" validate:"required"`
	Description     string     `json:"description"`
	Types           []string   `json:"types" validate:"required,min=1,dive,oneof=EBOOK AUDIOBOOK SUMMARY"`
	PDFPrice        int        `json:"pdfPrice" validate:"gte=0"`
	AudioPrice      int        `json:"audioPrice" validate:"gte=0"`
	BundlePrice     int        `json:"bundlePrice" validate:"gte=0"`
	SummaryPrice    int        `json:"summaryPrice" validate:"gte=0"`
	IsFree          bool       `json:"isFree"`
	FreeUntil       *time.Time `json:"freeUntil"`
	DiscountPercent int        `json:"discountPercent" validate:"gte=0,lte=100"`
	DiscountAmount  int        `json:"discountAmount" validate:"gte=0"`
	DiscountUntil   *time.Time `json:"discountUntil"`
	LimitedOffer    bool       `json:"limitedOffer"`
	OfferText       string     `json:"offerText"`
	Active          *bool      `json:"active"`
}

type ProductUp struct {
	Title           *string    `json:"title"`
	Author          *string    `json:"author"`
	Description     *string    `json:"description"`
	Types           []string   `json:"types" validate:"omitempty,min=1,dive,oneof=EBOOK AUDIOBOOK SUMMARY"`
	PDFPrice        *int       `json:"pdfPrice" validate:"omitempty,gte=0"`
	AudioPrice      *int       `json:"audioPrice" validate:"omitempty,gte=0"`
	BundlePrice     *int       `json:"bundlePrice" validate:"omitempty,gte=0"`
	SummaryPrice    *int       `json:"summaryPrice" validate:"omitempty,gte=0"`
	IsFree          *bool      `json:"isFree"`
	FreeUntil       *time.Time `json:"freeUntil"`
	ClearFreeUntil  bool       `json:"clearFreeUntil"`
	DiscountPercent *int       `json:"discountPercent" validate:"omitempty,gte=0,lte=100"`
	DiscountAmount  *int       `json:"discountAmount" validate:"omitempty,gte=0"`
	DiscountUntil   *time.Time `json:"discountUntil"`
	ClearDiscount   bool       `json:"clearDiscount"`
	LimitedOffer    *bool      `json:"limitedOffer"`
	OfferText       *string    `json:"offerText"`
	Active          *bool      `json:"active"`
}

// Apply merges the update into p.
func (up ProductUp) Apply(p *Product) error {
	if up.Types != nil {
		ts, err := ParseTypes(up.Types)
		if err != nil {
			return err
		}
		p.Types = ts
	}
	if up.Title != nil {
		p.Title = *up.Title
	}
	if up.Author != nil {
		p.Author = *up.Author
	}
	if up.Description != nil {
		p.Description = *up.Description
	}
	if up.PDFPrice != nil {
		p.PDFPrice = *up.PDFPrice
	}
	if up.AudioPrice != nil {
		p.AudioPrice = *up.AudioPrice
	}
	if up.BundlePrice != nil {
		p.BundlePrice = *up.BundlePrice
	}
	if up.SummaryPrice != nil {
		p.SummaryPrice = *up.SummaryPrice
	}
	if up.IsFree != nil {
		p.IsFree = *up.IsFree
	}
	if up.FreeUntil != nil {
		p.FreeUntil = up.FreeUntil
	}
	if up.ClearFreeUntil {
		p.FreeUntil = nil
	}
	if up.DiscountPercent != nil {
		p.DiscountPercent = *up.DiscountPercent
	}
	if up.DiscountAmount != nil {
		p.DiscountAmount = *up.DiscountAmount
	}
	if up.DiscountUntil != nil {
		p.DiscountUntil = up.DiscountUntil
	}
	if up.ClearDiscount {
		p.DiscountPercent = 0
		p.DiscountAmount = 0
		p.DiscountUntil = nil
	}
	if up.LimitedOffer != nil {
		p.LimitedOffer = *up.LimitedOffer
	}
	if up.OfferText != nil {
		p.OfferText = *up.OfferText
	}
	if up.Active != nil {
		p.Active = *up.Active
	}
	return nil
}

// Filter narrows a catalog listing.
type Filter struct {
	Query      string
	Type       ContentType
	ActiveOnly bool
}
