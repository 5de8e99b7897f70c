// Package delivery hands completed purchases their content as short lived
// signed urls. Every issuance is counted against the purchase and audited.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/core/purchase"
	"github.com/irsalhamdi/e-commerce-media/storage"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/sirupsen/logrus"
)

const defaultURLTTL = time.Hour

var (
	ErrNotFound           = errors.New("purchase not found")
	ErrForbidden          = errors.New("this purchase belongs to another user")
	ErrPaymentIncomplete  = errors.New("payment not completed")
	ErrExpired            = errors.New("download window has expired")
	ErrLimitReached       = errors.New("download limit reached, contact support for more downloads")
	ErrContentUnavailable = errors.New("content is not available for download")
)

// Purchases is the entitlement storage delivery reads and writes.
type Purchases interface {
	// Lookup returns the purchase and its product, or ErrNotFound.
	Lookup(ctx context.Context, purchaseID string) (purchase.Purchase, product.Product, error)
	// Record counts one delivery and writes its audit row atomically. The
	// count only moves while it is below ceiling; otherwise ErrLimitReached.
	Record(ctx context.Context, ceiling int, d purchase.Download) (int, error)
}

type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]storage.Object, error)
	Exists(ctx context.Context, key string) (bool, error)
	SignedGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Client struct {
	IP        string
	UserAgent string
}

type URLs struct {
	PDF     string `json:"pdf,omitempty"`
	Audio   string `json:"audio,omitempty"`
	Archive string `json:"archive,omitempty"`
}

type Chapter struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

type Summary struct {
	ID            string         `json:"id"`
	Format        product.Format `json:"format"`
	DownloadCount int            `json:"downloadCount"`
	MaxDownloads  int            `json:"maxDownloads"`
	ExpiresAt     *time.Time     `json:"expiresAt"`
	ProductTypes  product.Types  `json:"productTypes"`
}

type Delivery struct {
	Success   bool      `json:"success"`
	URLs      URLs      `json:"urls"`
	Chapters  []Chapter `json:"chapters,omitempty"`
	ExpiresIn int       `json:"expiresIn"`
	Purchase  Summary   `json:"purchase"`

	audioKey string
}

type Config struct {
	Purchases Purchases
	Store     ObjectStore
	Policy    Policy
	URLTTL    time.Duration
	Metrics   *Metrics
	Log       logrus.FieldLogger
}

type Engine struct {
	purchases Purchases
	store     ObjectStore
	policy    Policy
	ttl       time.Duration
	metrics   *Metrics
	log       logrus.FieldLogger

	now func() time.Time
}

func New(cfg Config) *Engine {
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = defaultURLTTL
	}
	return &Engine{
		purchases: cfg.Purchases,
		store:     cfg.Store,
		policy:    cfg.Policy,
		ttl:       ttl,
		metrics:   cfg.Metrics,
		log:       cfg.Log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Policy() Policy { return e.policy }

// Status reports what the engine's policy allows for pu right now.
func (e *Engine) Status(pu purchase.Purchase) Status {
	return e.policy.Status(pu, e.now())
}

// IssueLinks authorizes userID to receive the content of a purchase and
// returns signed urls for all of it. Either every required piece resolves or
// the call fails; the delivery is only counted once everything resolved.
func (e *Engine) IssueLinks(ctx context.Context, purchaseID, userID string, c Client) (Delivery, error) {
	d, err := e.issue(ctx, purchaseID, userID, c)
	if err != nil {
		e.metrics.deny(err)
		return Delivery{}, err
	}
	e.metrics.issue(d)
	return d, nil
}

func (e *Engine) issue(ctx context.Context, purchaseID, userID string, c Client) (Delivery, error) {
	pu, prod, err := e.purchases.Lookup(ctx, purchaseID)
	if err != nil {
		return Delivery{}, err
	}

	if pu.UserID != userID {
		return Delivery{}, ErrForbidden
	}
	if pu.Status != purchase.StatusCompleted {
		return Delivery{}, ErrPaymentIncomplete
	}

	now := e.now()
	if err := e.policy.check(pu, now); err != nil {
		return Delivery{}, err
	}

	log := e.log.WithFields(logrus.Fields{
		"purchase_id": pu.ID,
		"product":     prod.Slug,
		"format":      pu.Format,
	})

	d, err := e.resolve(ctx, pu, prod)
	if err != nil {
		log.WithError(err).Warn("delivery content could not be resolved")
		return Delivery{}, err
	}

	count, err := e.purchases.Record(ctx, e.policy.MaxDownloads, purchase.Download{
		ID:           validate.GenerateID(),
		PurchaseID:   pu.ID,
		IPAddress:    c.IP,
		UserAgent:    c.UserAgent,
		DownloadedAt: now,
	})
	if err != nil {
		return Delivery{}, err
	}

	d.Success = true
	d.ExpiresIn = int(e.ttl.Seconds())
	d.Purchase = Summary{
		ID:            pu.ID,
		Format:        pu.Format,
		DownloadCount: count,
		MaxDownloads:  e.policy.MaxDownloads,
		ExpiresAt:     e.policy.expiresAt(pu),
		ProductTypes:  prod.Types,
	}

	log.WithFields(logrus.Fields{
		"downloads": count,
		"chapters":  len(d.Chapters),
	}).Info("delivery issued")

	return d, nil
}

func (e *Engine) resolve(ctx context.Context, pu purchase.Purchase, prod product.Product) (Delivery, error) {
	var (
		d       Delivery
		matched bool
		layout  = storage.For(prod.StoragePath, prod.Slug)
	)

	if pu.Format == product.FormatPDF || (pu.Format == product.FormatBundle && prod.Types.Has(product.TypeEbook)) {
		u, err := e.document(ctx, layout, prod)
		if err != nil {
			return Delivery{}, err
		}
		d.URLs.PDF = u
		matched = true
	}

	switch {
	case pu.Format == product.FormatSummary:
		key, u, err := e.summary(ctx, layout)
		if err != nil {
			return Delivery{}, err
		}
		d.URLs.Audio, d.audioKey = u, key
		matched = true

	case pu.Format == product.FormatAudio || pu.Format == product.FormatBundle:
		switch {
		case prod.Types.Has(product.TypeAudiobook):
			chs, archive, err := e.chapters(ctx, layout)
			if err != nil {
				return Delivery{}, err
			}
			d.Chapters = chs
			d.URLs.Archive = archive
			matched = true

		case prod.Types.Has(product.TypeSummary):
			key, u, err := e.summary(ctx, layout)
			if err != nil {
				return Delivery{}, err
			}
			d.URLs.Audio, d.audioKey = u, key
			matched = true
		}
	}

	if !matched {
		return Delivery{}, fmt.Errorf("%w: %s of a %v product", ErrContentUnavailable, pu.Format, prod.Types)
	}
	return d, nil
}

func (e *Engine) sign(ctx context.Context, key string) (string, error) {
	u, err := e.store.SignedGet(ctx, key, e.ttl)
	if err != nil {
		return "", fmt.Errorf("signing key[%s]: %w", key, err)
	}
	return u, nil
}

func (e *Engine) document(ctx context.Context, layout storage.Layout, prod product.Product) (string, error) {
	key := prod.DocumentKey
	if key == "" {
		key = layout.Document()
	}

	ok, err := e.store.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("checking key[%s]: %w", key, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: missing document %s", ErrContentUnavailable, key)
	}
	return e.sign(ctx, key)
}

func (e *Engine) summary(ctx context.Context, layout storage.Layout) (string, string, error) {
	objs, err := e.store.List(ctx, layout.SummaryPrefix())
	if err != nil {
		return "", "", fmt.Errorf("listing summary audio: %w", err)
	}

	audio := sortedAudio(objs)
	if len(audio) == 0 {
		return "", "", fmt.Errorf("%w: no summary audio under %s", ErrContentUnavailable, layout.SummaryPrefix())
	}

	key := audio[0].Key
	u, err := e.sign(ctx, key)
	if err != nil {
		return "", "", err
	}
	return key, u, nil
}

// chapters signs every chapter in key order plus the optional archive.
func (e *Engine) chapters(ctx context.Context, layout storage.Layout) ([]Chapter, string, error) {
	objs, err := e.store.List(ctx, layout.ChapterPrefix())
	if err != nil {
		return nil, "", fmt.Errorf("listing chapters: %w", err)
	}

	audio := sortedAudio(objs)
	if len(audio) == 0 {
		return nil, "", fmt.Errorf("%w: no chapters under %s", ErrContentUnavailable, layout.ChapterPrefix())
	}

	chs := make([]Chapter, 0, len(audio))
	for i, o := range audio {
		u, err := e.sign(ctx, o.Key)
		if err != nil {
			return nil, "", err
		}

		n, ok := storage.ChapterNumber(o.Key)
		if !ok {
			n = i + 1
		}

		chs = append(chs, Chapter{
			Number:   n,
			Title:    fmt.Sprintf("Chapter %d", n),
			Filename: path.Base(o.Key),
			URL:      u,
			Size:     o.Size,
		})
	}

	ok, err := e.store.Exists(ctx, layout.Archive())
	if err != nil {
		e.log.WithField("key", layout.Archive()).WithError(err).Warn("archive lookup failed")
		return chs, "", nil
	}
	if !ok {
		return chs, "", nil
	}

	archive, err := e.sign(ctx, layout.Archive())
	if err != nil {
		return nil, "", err
	}
	return chs, archive, nil
}

// sortedAudio keeps the audio objects ordered by key. Key order is the
// chapter order, so chapter files carry zero padded numbers.
func sortedAudio(objs []storage.Object) []storage.Object {
	out := make([]storage.Object, 0, len(objs))
	for _, o := range objs {
		if storage.IsAudio(o.Key) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
