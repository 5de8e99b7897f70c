package delivery

import (
	"fmt"
	"time"

	"github.com/irsalhamdi/e-commerce-media/config"
	"github.com/irsalhamdi/e-commerce-media/core/purchase"
)

const (
	PolicyAudited  = "audited"
	PolicyWindowed = "windowed"

	defaultAuditedCeiling  = 100
	defaultWindowedCeiling = 5
)

// Policy decides whether a completed purchase may still be delivered.
// Audited purchases never expire and only count deliveries against a high
// ceiling; windowed purchases also stop at their expiry.
type Policy struct {
	Name          string
	MaxDownloads  int
	EnforceWindow bool
}

func Audited(max int) Policy {
	if max <= 0 {
		max = defaultAuditedCeiling
	}
	return Policy{Name: PolicyAudited, MaxDownloads: max}
}

func Windowed(max int) Policy {
	if max <= 0 {
		max = defaultWindowedCeiling
	}
	return Policy{Name: PolicyWindowed, MaxDownloads: max, EnforceWindow: true}
}

func ParsePolicy(cfg config.Delivery) (Policy, error) {
	switch cfg.Policy {
	case PolicyAudited, "":
		return Audited(cfg.MaxDownloads), nil
	case PolicyWindowed:
		return Windowed(cfg.MaxDownloads), nil
	}
	return Policy{}, fmt.Errorf("unknown delivery policy %q", cfg.Policy)
}

func (p Policy) expired(pu purchase.Purchase, now time.Time) bool {
	return p.EnforceWindow && !pu.ExpiresAt.IsZero() && !now.Before(pu.ExpiresAt)
}

func (p Policy) check(pu purchase.Purchase, now time.Time) error {
	if p.expired(pu, now) {
		return ErrExpired
	}
	if pu.DownloadCount >= p.MaxDownloads {
		return ErrLimitReached
	}
	return nil
}

type Status struct {
	CanDownload        bool       `json:"canDownload"`
	Expired            bool       `json:"expired"`
	LimitReached       bool       `json:"limitReached"`
	DownloadsRemaining int        `json:"downloadsRemaining"`
	DownloadCount      int        `json:"downloadCount"`
	MaxDownloads       int        `json:"maxDownloads"`
	ExpiresAt          *time.Time `json:"expiresAt"`
}

// Status describes what the policy allows for pu at instant now.
func (p Policy) Status(pu purchase.Purchase, now time.Time) Status {
	s := Status{
		Expired:       p.expired(pu, now),
		LimitReached:  pu.DownloadCount >= p.MaxDownloads,
		DownloadCount: pu.DownloadCount,
		MaxDownloads:  p.MaxDownloads,
		ExpiresAt:     p.expiresAt(pu),
	}
	if rem := p.MaxDownloads - pu.DownloadCount; rem > 0 {
		s.DownloadsRemaining = rem
	}
	s.CanDownload = pu.Status == purchase.StatusCompleted && !s.Expired && !s.LimitReached
	return s
}

func (p Policy) expiresAt(pu purchase.Purchase) *time.Time {
	if !p.EnforceWindow || pu.ExpiresAt.IsZero() {
		return nil
	}
	t := pu.ExpiresAt
	return &t
}
