// Package upload stores product files sent by administrators, either in one
// request or in chunks, and records their keys on the product.
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/irsalhamdi/e-commerce-media/storage"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrMissingChunks   = errors.New("missing chunks")
	ErrChunkIndex      = errors.New("chunk index out of range")
)

type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	CreateMultipart(ctx context.Context, key, contentType string) (string, error)
	UploadPart(ctx context.Context, key, uploadID string, n int32, data []byte) (storage.Part, error)
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []storage.Part) error
	AbortMultipart(ctx context.Context, key, uploadID string) error
}

type Products interface {
	Fetch(ctx context.Context, id string) (product.Product, error)
	SetKey(ctx context.Context, id string, col product.Key, key string, add product.ContentType) error
}

type SQLProducts struct {
	DB *sqlx.DB
}

func (s SQLProducts) Fetch(ctx context.Context, id string) (product.Product, error) {
	p, err := product.Fetch(ctx, s.DB, id)
	if errors.Is(err, database.ErrDBNotFound) {
		return product.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p, err
}

func (s SQLProducts) SetKey(ctx context.Context, id string, col product.Key, key string, add product.ContentType) error {
	return product.SetKey(ctx, s.DB, id, col, key, add)
}

// File describes what is being uploaded.
type File struct {
	ProductID   string
	Role        storage.Role
	FileName    string
	ContentType string
	Size        int64
	// Chapter numbers chapter uploads, starting at 1.
	Chapter int
}

type Result struct {
	Success  bool         `json:"success"`
	Key      string       `json:"key"`
	FileType storage.Role `json:"fileType"`
}

type Progress struct {
	Success        bool `json:"success"`
	UploadedChunks int  `json:"uploadedChunks"`
	TotalChunks    int  `json:"totalChunks"`
	Progress       int  `json:"progress"`
}

type Config struct {
	Products Products
	Store    ObjectStore
	Sessions SessionStore
	Log      logrus.FieldLogger
}

type Uploader struct {
	products Products
	store    ObjectStore
	sessions SessionStore
	log      logrus.FieldLogger

	now func() time.Time
}

func New(cfg Config) *Uploader {
	return &Uploader{
		products: cfg.Products,
		store:    cfg.Store,
		sessions: cfg.Sessions,
		log:      cfg.Log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type target struct {
	key string
	col product.Key
	add product.ContentType
}

// locate checks f and names the object it becomes and the product column
// pointing at it. Chapters and archives are found by listing, not by column.
func (u *Uploader) locate(ctx context.Context, f *File) (target, error) {
	if f.ContentType == "" {
		f.ContentType = storage.ContentType(storage.Ext(f.FileName))
	}
	if err := storage.Validate(f.Role, f.Size, f.ContentType); err != nil {
		return target{}, err
	}

	p, err := u.products.Fetch(ctx, f.ProductID)
	if err != nil {
		return target{}, err
	}
	layout := storage.For(p.StoragePath, p.Slug)
	ext := storage.Ext(f.FileName)

	switch f.Role {
	case storage.RoleChapter:
		if f.Chapter < 1 {
			return target{}, fmt.Errorf("%w: chapter uploads need a chapter number", storage.ErrInvalidType)
		}
		if ext == "" {
			return target{}, fmt.Errorf("%w: missing file extension", storage.ErrInvalidType)
		}
		return target{key: layout.Chapter(f.Chapter, ext)}, nil
	case storage.RoleArchive:
		return target{key: layout.Archive()}, nil
	}

	key, err := layout.Key(f.Role, ext)
	if err != nil {
		return target{}, fmt.Errorf("%w: %v", storage.ErrInvalidType, err)
	}

	t := target{key: key}
	t.col, t.add = column(f.Role)
	return t, nil
}

// column is the product column recording objects of role, and the content
// type such an object makes available.
func column(role storage.Role) (product.Key, product.ContentType) {
	switch role {
	case storage.RoleCover:
		return product.KeyCover, ""
	case storage.RoleDocument:
		return product.KeyDocument, ""
	case storage.RoleAudio:
		return product.KeyAudio, ""
	case storage.RoleSample:
		return product.KeySample, ""
	case storage.RoleSummaryAudio:
		return product.KeySummary, product.TypeSummary
	}
	return "", ""
}

func (u *Uploader) backfill(ctx context.Context, productID string, t target) error {
	if t.col == "" {
		return nil
	}
	if err := u.products.SetKey(ctx, productID, t.col, t.key, t.add); err != nil {
		return fmt.Errorf("recording %s on product[%s]: %w", t.key, productID, err)
	}
	return nil
}

// Direct stores a whole file in one call.
func (u *Uploader) Direct(ctx context.Context, f File, data []byte) (Result, error) {
	f.Size = int64(len(data))
	t, err := u.locate(ctx, &f)
	if err != nil {
		return Result{}, err
	}

	if err := u.store.Put(ctx, t.key, data, f.ContentType); err != nil {
		return Result{}, err
	}
	if err := u.backfill(ctx, f.ProductID, t); err != nil {
		return Result{}, err
	}

	u.log.WithFields(logrus.Fields{
		"product_id": f.ProductID,
		"key":        t.key,
		"size":       f.Size,
	}).Info("file uploaded")

	return Result{Success: true, Key: t.key, FileType: f.Role}, nil
}

// Init opens a chunked upload of totalChunks parts.
func (u *Uploader) Init(ctx context.Context, f File, totalChunks int) (Session, error) {
	if totalChunks < 1 || totalChunks > 10000 {
		return Session{}, fmt.Errorf("%w: %d chunks", ErrChunkIndex, totalChunks)
	}

	t, err := u.locate(ctx, &f)
	if err != nil {
		return Session{}, err
	}

	uploadID, err := u.store.CreateMultipart(ctx, t.key, f.ContentType)
	if err != nil {
		return Session{}, err
	}

	s := Session{
		ID:          validate.GenerateID(),
		ProductID:   f.ProductID,
		Role:        f.Role,
		FileName:    f.FileName,
		ContentType: f.ContentType,
		Size:        f.Size,
		TotalChunks: totalChunks,
		Chapter:     f.Chapter,
		Key:         t.key,
		UploadID:    uploadID,
		CreatedAt:   u.now(),
	}
	if err := u.sessions.Create(ctx, s); err != nil {
		u.abort(ctx, s)
		return Session{}, err
	}

	return s, nil
}

// Chunk uploads chunk index, counted from zero. Sending a chunk again
// replaces it.
func (u *Uploader) Chunk(ctx context.Context, sessionID string, index int, data []byte) (Progress, error) {
	s, err := u.sessions.Get(ctx, sessionID)
	if err != nil {
		return Progress{}, err
	}
	if index < 0 || index >= s.TotalChunks {
		return Progress{}, fmt.Errorf("%w: %d of %d", ErrChunkIndex, index, s.TotalChunks)
	}

	max := storage.MaxSize(s.Role)
	if int64(len(data)) > max {
		return Progress{}, u.oversized(ctx, s, int64(len(data)), max)
	}

	part, err := u.store.UploadPart(ctx, s.Key, s.UploadID, int32(index+1), data)
	if err != nil {
		return Progress{}, err
	}
	part.Size = int64(len(data))

	n, total, err := u.sessions.AddPart(ctx, sessionID, part)
	if err != nil {
		return Progress{}, err
	}
	if total > max {
		return Progress{}, u.oversized(ctx, s, total, max)
	}

	return Progress{
		Success:        true,
		UploadedChunks: n,
		TotalChunks:    s.TotalChunks,
		Progress:       n * 100 / s.TotalChunks,
	}, nil
}

// Finalize assembles the chunks into the object and records its key.
func (u *Uploader) Finalize(ctx context.Context, sessionID string) (Result, error) {
	s, err := u.sessions.Get(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}

	parts, err := u.sessions.Parts(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if len(parts) != s.TotalChunks {
		return Result{}, fmt.Errorf("%w: %d/%d", ErrMissingChunks, len(parts), s.TotalChunks)
	}

	if err := u.store.CompleteMultipart(ctx, s.Key, s.UploadID, parts); err != nil {
		return Result{}, err
	}

	t := target{key: s.Key}
	t.col, t.add = column(s.Role)
	if err := u.backfill(ctx, s.ProductID, t); err != nil {
		return Result{}, err
	}

	if err := u.sessions.Delete(ctx, sessionID); err != nil {
		u.log.WithError(err).WithField("session_id", sessionID).Warn("upload session left behind")
	}

	u.log.WithFields(logrus.Fields{
		"product_id": s.ProductID,
		"key":        s.Key,
		"chunks":     s.TotalChunks,
	}).Info("chunked upload completed")

	return Result{Success: true, Key: s.Key, FileType: s.Role}, nil
}

// Cancel drops the session and the parts sent so far. Unknown sessions are
// already gone.
func (u *Uploader) Cancel(ctx context.Context, sessionID string) error {
	s, err := u.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	u.abort(ctx, s)
	return u.sessions.Delete(ctx, sessionID)
}

// oversized drops a session whose chunks outgrew the ceiling of its role.
func (u *Uploader) oversized(ctx context.Context, s Session, size, max int64) error {
	u.abort(ctx, s)
	if err := u.sessions.Delete(ctx, s.ID); err != nil {
		u.log.WithError(err).WithField("session_id", s.ID).Warn("upload session left behind")
	}
	return fmt.Errorf("%w: %d bytes sent, maximum for %s is %d", storage.ErrTooLarge, size, s.Role, max)
}

// Expired aborts the multipart upload of a session that timed out.
func (u *Uploader) Expired(s Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	u.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"key":        s.Key,
	}).Info("upload session expired")
	u.abort(ctx, s)
}

func (u *Uploader) abort(ctx context.Context, s Session) {
	if err := u.store.AbortMultipart(ctx, s.Key, s.UploadID); err != nil {
		u.log.WithError(err).WithField("key", s.Key).Warn("multipart upload not aborted")
	}
}
