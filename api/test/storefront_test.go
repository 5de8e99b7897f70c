package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/e-commerce-media/core/cart"
	"github.com/irsalhamdi/e-commerce-media/core/catalog"
	"github.com/irsalhamdi/e-commerce-media/core/checkout"
	"github.com/irsalhamdi/e-commerce-media/core/delivery"
	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/core/purchase"
	"github.com/irsalhamdi/e-commerce-media/storage"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

type storeTest struct {
	*TestEnv
}

func (st *storeTest) asAdmin(t *testing.T) func() {
	t.Helper()
	if err := Login(st.Server, st.AdminEmail, st.AdminPass); err != nil {
		t.Fatal(err)
	}
	return func() { Logout(st.Server) }
}

func (st *storeTest) asUser(t *testing.T) func() {
	t.Helper()
	if err := Login(st.Server, st.UserEmail, st.UserPass); err != nil {
		t.Fatal(err)
	}
	return func() { Logout(st.Server) }
}

// createEbook publishes an ebook and uploads its document.
func (st *storeTest) createEbook(t *testing.T, in product.ProductNew) product.Product {
	t.Helper()
	defer st.asAdmin(t)()

	in.Types = []string{string(product.TypeEbook)}

	var p product.Product
	st.call(t, http.MethodPost, "/products", in, http.StatusCreated, &p)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("productId", p.ID)
	mw.WriteField("fileType", string(storage.RoleDocument))

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s.pdf"`, p.Slug))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("%PDF-1.7"))
	mw.Close()

	w, err := st.Client().Post(st.URL+"/uploads/direct", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()
	if w.StatusCode != http.StatusOK {
		t.Fatalf("uploading document of %s: status code %s", p.Slug, w.Status)
	}

	return p
}

func (st *storeTest) addToCart(t *testing.T, productID string, f product.Format) cart.Item {
	t.Helper()
	var it cart.Item
	st.call(t, http.MethodPut, "/cart/items", cart.ItemNew{ProductID: productID, Format: f}, http.StatusCreated, &it)
	return it
}

func (st *storeTest) library(t *testing.T) []delivery.LibraryEntry {
	t.Helper()
	var lib []delivery.LibraryEntry
	st.call(t, http.MethodGet, "/library", nil, http.StatusOK, &lib)
	return lib
}

func TestStorefront(t *testing.T) {
	env := NewTestEnv(t, "storefront_test", "paystack")
	st := &storeTest{env}

	book := st.createEbook(t, product.ProductNew{
		Slug:     "deep-work",
		Title:    "Deep Work",
		Author:   "Cal Newport",
		PDFPrice: 150,
	})
	notes := st.createEbook(t, product.ProductNew{
		Slug:   "free-notes",
		Title:  "Free Notes",
		Author: "Anon",
		IsFree: true,
	})

	if !st.Objects.has("products/deep-work/deep-work.pdf") {
		t.Fatal("document of deep-work was not stored")
	}

	defer st.asUser(t)()

	var listed []catalog.Listing
	st.call(t, http.MethodGet, "/products", nil, http.StatusOK, &listed)
	if len(listed) != 2 {
		t.Fatalf("listed %d products, want 2", len(listed))
	}

	var shown catalog.Listing
	st.call(t, http.MethodGet, "/products/deep-work", nil, http.StatusOK, &shown)
	if got := shown.Prices[product.FormatPDF].FinalPrice; got != 150 {
		t.Fatalf("pdf price = %d, want 150", got)
	}

	item := st.addToCart(t, book.ID, product.FormatPDF)
	st.call(t, http.MethodPut, "/cart/items", cart.ItemNew{ProductID: book.ID, Format: product.FormatPDF}, http.StatusConflict, nil)
	st.call(t, http.MethodPut, "/cart/items", cart.ItemNew{ProductID: book.ID, Format: product.FormatAudio}, http.StatusBadRequest, nil)

	st.Paystack.expect(150)

	var res checkout.Result
	st.call(t, http.MethodPost, "/checkout", checkout.InitiateRequest{CartItemIDs: []string{item.ID}}, http.StatusOK, &res)
	if res.Free || res.Total != 150 || res.Reference == "" {
		t.Fatalf("unexpected checkout result: %+v", res)
	}
	if len(res.Purchases) != 1 || res.Purchases[0].Status != purchase.StatusPending {
		t.Fatalf("unexpected purchases: %+v", res.Purchases)
	}
	purchaseID := res.Purchases[0].ID

	st.call(t, http.MethodGet, "/download/"+purchaseID, nil, http.StatusBadRequest, nil)
	st.call(t, http.MethodGet, "/audio/stream/"+purchaseID, nil, http.StatusBadRequest, nil)
	st.call(t, http.MethodPost, "/checkout/verify", checkout.VerifyRequest{Reference: res.Reference}, http.StatusBadRequest, nil)

	st.Paystack.pay(res.Reference)

	var v checkout.Verification
	st.call(t, http.MethodPost, "/checkout/verify", checkout.VerifyRequest{Reference: res.Reference}, http.StatusOK, &v)
	if len(v.Purchases) != 1 || v.Purchases[0].Status != purchase.StatusCompleted {
		t.Fatalf("purchase not completed: %+v", v.Purchases)
	}
	st.call(t, http.MethodPost, "/checkout/verify", checkout.VerifyRequest{Reference: res.Reference}, http.StatusOK, nil)
	st.call(t, http.MethodPost, "/checkout/verify", checkout.VerifyRequest{Reference: "ps_ref_unknown"}, http.StatusInternalServerError, nil)

	var count struct {
		Count int `json:"count"`
	}
	st.call(t, http.MethodGet, "/cart/count", nil, http.StatusOK, &count)
	if count.Count != 0 {
		t.Fatalf("cart still holds %d items after payment", count.Count)
	}

	var d delivery.Delivery
	st.call(t, http.MethodGet, "/download/"+purchaseID, nil, http.StatusOK, &d)
	want := delivery.URLs{PDF: "https://objects.test/products/deep-work/deep-work.pdf?ttl=3600"}
	if diff := cmp.Diff(want, d.URLs); diff != "" {
		t.Fatalf("urls mismatch (-want +got):\n%s", diff)
	}
	if d.Purchase.DownloadCount != 1 || d.Purchase.MaxDownloads != 3 {
		t.Fatalf("unexpected summary: %+v", d.Purchase)
	}

	st.call(t, http.MethodGet, "/download/"+purchaseID, nil, http.StatusOK, nil)
	st.call(t, http.MethodGet, "/download/"+purchaseID, nil, http.StatusOK, nil)
	st.call(t, http.MethodGet, "/download/"+purchaseID, nil, http.StatusBadRequest, nil)

	st.call(t, http.MethodGet, "/audio/stream/"+purchaseID, nil, http.StatusBadRequest, nil)
	st.call(t, http.MethodGet, "/audio/stream/"+validate.GenerateID(), nil, http.StatusNotFound, nil)

	downloads, err := purchase.FetchDownloads(context.Background(), st.DB, purchaseID)
	if err != nil {
		t.Fatal(err)
	}
	if len(downloads) != 3 {
		t.Fatalf("audited %d downloads, want 3", len(downloads))
	}

	st.addToCart(t, notes.ID, product.FormatPDF)

	var free checkout.Result
	st.call(t, http.MethodPost, "/checkout", nil, http.StatusCreated, &free)
	if !free.Free || len(free.Purchases) != 1 || free.Purchases[0].Status != purchase.StatusCompleted {
		t.Fatalf("unexpected free checkout: %+v", free)
	}

	lib := st.library(t)
	if len(lib) != 2 {
		t.Fatalf("library has %d entries, want 2", len(lib))
	}
	for _, e := range lib {
		switch e.Purchase.ID {
		case purchaseID:
			if e.LastDownloadedAt == nil || !e.LastDownloadedAt.Equal(downloads[2].DownloadedAt) {
				t.Fatalf("last download = %v, want %v", e.LastDownloadedAt, downloads[2].DownloadedAt)
			}
		default:
			if e.LastDownloadedAt != nil {
				t.Fatalf("never downloaded purchase reports a download at %v", e.LastDownloadedAt)
			}
		}
	}

	st.call(t, http.MethodPost, "/checkout", nil, http.StatusBadRequest, nil)

	t.Run("favorites", func(t *testing.T) {
		var fav struct {
			ProductID  string `json:"productId"`
			IsFavorite bool   `json:"isFavorite"`
		}
		st.call(t, http.MethodPost, "/favorites", map[string]string{"productId": book.ID}, http.StatusOK, &fav)
		if !fav.IsFavorite {
			t.Fatal("product not favored")
		}

		var favs []catalog.Listing
		st.call(t, http.MethodGet, "/favorites", nil, http.StatusOK, &favs)
		if len(favs) != 1 || favs[0].ID != book.ID {
			t.Fatalf("unexpected favorites: %+v", favs)
		}

		st.call(t, http.MethodDelete, "/favorites/"+book.ID, nil, http.StatusNoContent, nil)
		st.call(t, http.MethodDelete, "/favorites/"+book.ID, nil, http.StatusNotFound, nil)
	})

	t.Run("unavailable products", func(t *testing.T) {
		Logout(st.Server)
		inactive := false
		hidden := st.createEbook(t, product.ProductNew{Slug: "hidden", Title: "Hidden", Author: "H", PDFPrice: 20, Active: &inactive})

		st.asUser(t)

		st.call(t, http.MethodPut, "/cart/items", cart.ItemNew{ProductID: hidden.ID, Format: product.FormatPDF}, http.StatusNotFound, nil)
		st.call(t, http.MethodPut, "/cart/items", cart.ItemNew{ProductID: validate.GenerateID(), Format: product.FormatPDF}, http.StatusNotFound, nil)

		var count struct {
			Count int `json:"count"`
		}
		st.call(t, http.MethodGet, "/cart/count", nil, http.StatusOK, &count)
		if count.Count != 0 {
			t.Fatalf("cart holds %d items, want 0", count.Count)
		}
	})

	t.Run("admin only", func(t *testing.T) {
		st.call(t, http.MethodDelete, "/products/"+book.ID, nil, http.StatusForbidden, nil)
	})

	t.Run("purchased products stay", func(t *testing.T) {
		Logout(st.Server)
		defer st.asAdmin(t)()

		st.call(t, http.MethodDelete, "/products/"+book.ID, nil, http.StatusConflict, nil)
		if !st.Objects.has("products/deep-work/deep-work.pdf") {
			t.Fatal("objects of a purchased product were deleted")
		}
	})

	t.Run("cleanup", func(t *testing.T) {
		Logout(st.Server)
		p := st.createEbook(t, product.ProductNew{Slug: "pending-book", Title: "Pending", Author: "P", PDFPrice: 40})

		logout := st.asUser(t)
		st.addToCart(t, p.ID, product.FormatPDF)
		st.Paystack.expect(40)

		var res checkout.Result
		st.call(t, http.MethodPost, "/checkout", nil, http.StatusOK, &res)
		logout()

		defer st.asAdmin(t)()

		var out struct {
			Success bool  `json:"success"`
			Updated int64 `json:"updated"`
		}
		in := purchase.CleanupRequest{References: []string{res.Reference}}
		st.call(t, http.MethodPost, "/api/admin/cleanup-purchases", in, http.StatusOK, &out)
		if !out.Success || out.Updated != 1 {
			t.Fatalf("unexpected cleanup result: %+v", out)
		}

		pu, err := purchase.Fetch(context.Background(), st.DB, res.Purchases[0].ID)
		if err != nil {
			t.Fatal(err)
		}
		if pu.Status != purchase.StatusCompleted {
			t.Fatalf("status = %s, want COMPLETED", pu.Status)
		}
	})
}

func TestDeleteProduct(t *testing.T) {
	env := NewTestEnv(t, "delete_product_test", "paystack")
	st := &storeTest{env}

	p := st.createEbook(t, product.ProductNew{Slug: "draft", Title: "Draft", Author: "A", PDFPrice: 10})

	defer st.asAdmin(t)()

	st.call(t, http.MethodDelete, "/products/"+p.ID, nil, http.StatusNoContent, nil)
	if st.Objects.has("products/draft/draft.pdf") {
		t.Fatal("objects of a deleted product were kept")
	}
	st.call(t, http.MethodGet, "/products/draft", nil, http.StatusNotFound, nil)
}

func TestStripeWebhook(t *testing.T) {
	env := NewTestEnv(t, "stripe_webhook_test", "stripe")
	st := &storeTest{env}

	book := st.createEbook(t, product.ProductNew{Slug: "atomic", Title: "Atomic", Author: "J", PDFPrice: 200})

	defer st.asUser(t)()

	item := st.addToCart(t, book.ID, product.FormatPDF)
	st.Stripe.expect(200)

	var res checkout.Result
	st.call(t, http.MethodPost, "/checkout", nil, http.StatusOK, &res)
	if res.Authorization == nil || res.Authorization.AuthorizationURL == "" {
		t.Fatalf("no checkout url: %+v", res)
	}

	session := map[string]any{
		"id":                  res.Reference,
		"object":              "checkout.session",
		"mode":                stripe.CheckoutSessionModePayment,
		"payment_status":      stripe.CheckoutSessionPaymentStatusPaid,
		"amount_total":        20000,
		"currency":            "kes",
		"client_reference_id": st.UserID,
		"metadata": map[string]string{
			"user_id":       st.UserID,
			"cart_item_ids": item.ID,
		},
	}
	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatal(err)
	}

	evt := stripe.Event{
		APIVersion: stripe.APIVersion,
		Type:       "checkout.session.completed",
		Data:       &stripe.EventData{Raw: json.RawMessage(raw)},
	}
	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}

	post := func(header string) int {
		r, err := http.NewRequest(http.MethodPost, st.URL+"/checkout/stripe/webhook", bytes.NewReader(b))
		if err != nil {
			t.Fatal(err)
		}
		if header != "" {
			r.Header.Set("Stripe-Signature", header)
		}
		w, err := st.Client().Do(r)
		if err != nil {
			t.Fatal(err)
		}
		w.Body.Close()
		return w.StatusCode
	}

	if got := post(""); got != http.StatusBadRequest {
		t.Fatalf("unsigned event: status %d", got)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   b,
		Secret:    st.WebhookSecret,
		Timestamp: time.Now(),
	})
	if got := post(signed.Header); got != http.StatusNoContent {
		t.Fatalf("signed event: status %d", got)
	}
	if got := post(signed.Header); got != http.StatusNoContent {
		t.Fatalf("replayed event: status %d", got)
	}

	lib := st.library(t)
	if len(lib) != 1 || lib[0].Purchase.Status != purchase.StatusCompleted {
		t.Fatalf("unexpected library: %+v", lib)
	}
}
