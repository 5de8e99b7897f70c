// Package purchase stores entitlements: the record that a user paid, or got
// for free, one format of one product, and the audit trail of its deliveries.
package purchase

import (
	"errors"
	"time"

	"github.com/irsalhamdi/e-commerce-media/core/product"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

var (
	ErrDuplicateReference = errors.New("payment reference already used")
	ErrCeilingReached     = errors.New("download ceiling reached")
)

// FreePrefix marks references of purchases that never went through a gateway.
const FreePrefix = "FREE-"

type Purchase struct {
	ID            string         `json:"id" db:"purchase_id"`
	UserID        string         `json:"-" db:"user_id"`
	ProductID     string         `json:"productId" db:"product_id"`
	Format        product.Format `json:"format" db:"format"`
	Amount        int            `json:"amount" db:"amount"`
	Currency      string         `json:"currency" db:"currency"`
	PaymentRef    string         `json:"reference" db:"payment_ref"`
	Provider      string         `json:"provider" db:"provider"`
	Status        Status         `json:"paymentStatus" db:"payment_status"`
	DownloadCount int            `json:"downloadCount" db:"download_count"`
	ExpiresAt     time.Time      `json:"expiresAt" db:"expires_at"`
	DownloadToken string         `json:"-" db:"download_token"`
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time      `json:"updatedAt" db:"updated_at"`
}

// Download is one issuance of delivery links. Rows are never updated.
type Download struct {
	ID           string    `json:"id" db:"download_id"`
	PurchaseID   string    `json:"purchaseId" db:"purchase_id"`
	IPAddress    string    `json:"ipAddress" db:"ip_address"`
	UserAgent    string    `json:"userAgent" db:"user_agent"`
	DownloadedAt time.Time `json:"downloadedAt" db:"downloaded_at"`
}

type CleanupRequest struct {
	References []string `json:"references" validate:"required,min=1,dive,required"`
}
