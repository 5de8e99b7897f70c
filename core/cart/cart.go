package cart

import (
	"errors"
	"time"

	"github.com/irsalhamdi/e-commerce-media/core/pricing"
	"github.com/irsalhamdi/e-commerce-media/core/product"
)

var (
	ErrDuplicateItem      = errors.New("item already in cart")
	ErrProductUnavailable = errors.New("product is not available")
	ErrFormatUnavailable  = errors.New("format is not offered for this product")
	ErrItemNotFound       = errors.New("cart item not found")
)

// Item is the intent to buy one format of one product. It carries no price:
// lines are priced whenever the cart is read.
type Item struct {
	ID        string         `json:"id" db:"cart_item_id"`
	UserID    string         `json:"-" db:"user_id"`
	ProductID string         `json:"productId" db:"product_id"`
	Format    product.Format `json:"format" db:"format"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}

type ItemNew struct {
	ProductID string         `json:"productId" validate:"required,uuid"`
	Format    product.Format `json:"format" validate:"required"`
}

type Line struct {
	Item
	Product product.Product `json:"product"`
	Price   pricing.Price   `json:"price"`
}

type Cart struct {
	Items     []Line `json:"items"`
	Subtotal  int    `json:"subtotal"`
	Total     int    `json:"total"`
	Savings   int    `json:"savings"`
	ItemCount int    `json:"itemCount"`
}

// Price assembles a cart from items and their products at instant now.
// Items whose product is gone are dropped.
func Price(items []Item, products map[string]product.Product, now time.Time) Cart {
	c := Cart{Items: make([]Line, 0, len(items))}

	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			continue
		}

		pr := pricing.Resolve(p, it.Format, now)
		c.Items = append(c.Items, Line{Item: it, Product: p, Price: pr})
		c.Subtotal += pr.OriginalPrice
		c.Total += pr.FinalPrice
		c.Savings += pr.Savings
	}
	c.ItemCount = len(c.Items)

	return c
}
