package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/api/weberr"
	"github.com/irsalhamdi/e-commerce-media/storage"
	"github.com/irsalhamdi/e-commerce-media/validate"
)

const (
	maxRequestBytes = 110 << 20
	maxMemoryBytes  = 32 << 20
)

func uploadError(err error) error {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return weberr.NotFound(err)
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrMissingChunks),
		errors.Is(err, ErrChunkIndex),
		errors.Is(err, storage.ErrInvalidType):
		return weberr.Reason(err, http.StatusBadRequest)
	case errors.Is(err, storage.ErrTooLarge):
		return weberr.Reason(err, http.StatusRequestEntityTooLarge)
	}
	return err
}

func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		return weberr.BadRequest(fmt.Errorf("unable to parse form: %w", err))
	}
	return nil
}

// fileForm reads the fields describing the target of an upload.
func fileForm(r *http.Request) (File, error) {
	f := File{
		ProductID: r.FormValue("productId"),
		FileName:  r.FormValue("fileName"),
	}

	if err := validate.CheckID(f.ProductID); err != nil {
		return File{}, weberr.BadRequest(fmt.Errorf("productId is not valid: %w", err))
	}

	role, err := storage.ParseRole(r.FormValue("fileType"))
	if err != nil {
		return File{}, weberr.BadRequest(err)
	}
	f.Role = role

	if v := r.FormValue("chapter"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return File{}, weberr.BadRequest(fmt.Errorf("chapter is not a number: %w", err))
		}
		f.Chapter = n
	}

	return f, nil
}

func readPart(r *http.Request, field string) ([]byte, *multipart.FileHeader, error) {
	file, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, nil, weberr.BadRequest(fmt.Errorf("missing %s: %w", field, err))
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", field, err)
	}
	return data, hdr, nil
}

func HandleDirect(u *Uploader) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := parseForm(w, r); err != nil {
			return err
		}

		f, err := fileForm(r)
		if err != nil {
			return err
		}

		data, hdr, err := readPart(r, "file")
		if err != nil {
			return err
		}
		f.FileName = hdr.Filename
		f.ContentType = hdr.Header.Get("Content-Type")

		res, err := u.Direct(ctx, f, data)
		if err != nil {
			return uploadError(err)
		}

		return web.Respond(ctx, w, res, http.StatusOK)
	}
}

// HandleChunk drives a chunked upload through the init, upload, finalize
// and cancel actions.
func HandleChunk(u *Uploader) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := parseForm(w, r); err != nil {
			return err
		}

		switch action := r.FormValue("action"); action {
		case "init":
			f, err := fileForm(r)
			if err != nil {
				return err
			}
			f.ContentType = r.FormValue("contentType")

			f.Size, err = strconv.ParseInt(r.FormValue("fileSize"), 10, 64)
			if err != nil {
				return weberr.BadRequest(fmt.Errorf("fileSize is not a number: %w", err))
			}

			total := 1
			if v := r.FormValue("totalChunks"); v != "" {
				if total, err = strconv.Atoi(v); err != nil {
					return weberr.BadRequest(fmt.Errorf("totalChunks is not a number: %w", err))
				}
			}

			s, err := u.Init(ctx, f, total)
			if err != nil {
				return uploadError(err)
			}

			return web.Respond(ctx, w, struct {
				Success bool `json:"success"`
				Session
			}{true, s}, http.StatusOK)

		case "upload":
			index, err := strconv.Atoi(r.FormValue("chunkIndex"))
			if err != nil {
				return weberr.BadRequest(fmt.Errorf("chunkIndex is not a number: %w", err))
			}

			data, _, err := readPart(r, "chunk")
			if err != nil {
				return err
			}

			p, err := u.Chunk(ctx, r.FormValue("sessionId"), index, data)
			if err != nil {
				return uploadError(err)
			}

			return web.Respond(ctx, w, p, http.StatusOK)

		case "finalize":
			res, err := u.Finalize(ctx, r.FormValue("sessionId"))
			if err != nil {
				return uploadError(err)
			}

			return web.Respond(ctx, w, res, http.StatusOK)

		case "cancel":
			if err := u.Cancel(ctx, r.FormValue("sessionId")); err != nil {
				return uploadError(err)
			}

			return web.Respond(ctx, w, struct {
				Success bool `json:"success"`
			}{true}, http.StatusOK)

		default:
			return weberr.BadRequest(fmt.Errorf("invalid action %q", action))
		}
	}
}
