package delivery

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/core/purchase"
	"github.com/sirupsen/logrus"
)

var ErrNoAudio = errors.New("this purchase does not include audio")

// StreamProduct is the slice of a product the player shows.
type StreamProduct struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Slug     string        `json:"slug"`
	Author   string        `json:"author"`
	CoverKey string        `json:"coverKey,omitempty"`
	Types    product.Types `json:"types"`
}

// Stream is what the in-app player needs to play a purchase. A summary
// plays as a single chapter.
type Stream struct {
	Success    bool          `json:"success"`
	Product    StreamProduct `json:"product"`
	Chapters   []Chapter     `json:"chapters"`
	ArchiveURL string        `json:"zipUrl,omitempty"`
	ExpiresIn  int           `json:"expiresIn"`
	IsSummary  bool          `json:"isSummary"`
}

// Stream signs the audio of a purchase for playback. Ownership, payment and
// the entitlement window are checked as in IssueLinks; the download ceiling
// is not, and nothing is counted.
func (e *Engine) Stream(ctx context.Context, purchaseID, userID string) (Stream, error) {
	s, err := e.stream(ctx, purchaseID, userID)
	if err != nil {
		e.metrics.deny(err)
	}
	return s, err
}

func (e *Engine) stream(ctx context.Context, purchaseID, userID string) (Stream, error) {
	pu, prod, err := e.purchases.Lookup(ctx, purchaseID)
	if err != nil {
		return Stream{}, err
	}

	if pu.UserID != userID {
		return Stream{}, ErrForbidden
	}
	if pu.Status != purchase.StatusCompleted {
		return Stream{}, ErrPaymentIncomplete
	}
	if e.policy.expired(pu, e.now()) {
		return Stream{}, ErrExpired
	}

	listen := pu
	switch pu.Format {
	case product.FormatAudio, product.FormatSummary:
	case product.FormatBundle:
		listen.Format = product.FormatAudio
	default:
		return Stream{}, ErrNoAudio
	}

	d, err := e.resolve(ctx, listen, prod)
	if err != nil {
		e.log.WithFields(logrus.Fields{
			"purchase_id": pu.ID,
			"product":     prod.Slug,
		}).WithError(err).Warn("stream content could not be resolved")
		return Stream{}, err
	}

	s := Stream{
		Success: true,
		Product: StreamProduct{
			ID:       prod.ID,
			Title:    prod.Title,
			Slug:     prod.Slug,
			Author:   prod.Author,
			CoverKey: prod.CoverKey,
			Types:    prod.Types,
		},
		Chapters:   d.Chapters,
		ArchiveURL: d.URLs.Archive,
		ExpiresIn:  int(e.ttl.Seconds()),
	}

	if d.URLs.Audio != "" {
		s.IsSummary = true
		s.Chapters = []Chapter{{
			Number:   1,
			Title:    fmt.Sprintf("%s - Audio Summary", prod.Title),
			Filename: path.Base(d.audioKey),
			URL:      d.URLs.Audio,
		}}
	}

	return s, nil
}
