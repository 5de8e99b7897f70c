package middleware

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/irsalhamdi/e-commerce-media/api/web"
)

const (
	RequestIDHeader = "X-Request-Id"

	DefaultRequestIDLengthLimit = 128
)

type reqIDKeyCtx int

const reqIDKey reqIDKeyCtx = 1

var (
	reqID     int64
	reqPrefix string
)

func init() {
	var buf [12]byte
	var b64 string
	for len(b64) < 10 {
		_, _ = rand.Read(buf[:])
		b64 = base64.StdEncoding.EncodeToString(buf[:])
		b64 = strings.NewReplacer("+", "", "/", "").Replace(b64)
	}
	reqPrefix = b64[0:10]
}

// RequestID reuses the caller's X-Request-Id, truncated, or mints one, and
// echoes it back on the response.
func RequestID() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			id := r.Header.Get(RequestIDHeader)
			switch {
			case id == "":
				id = fmt.Sprintf("%s-%d", reqPrefix, atomic.AddInt64(&reqID, 1))
			case len(id) > DefaultRequestIDLengthLimit:
				id = id[:DefaultRequestIDLengthLimit]
			}
			w.Header().Set(RequestIDHeader, id)

			return handler(context.WithValue(ctx, reqIDKey, id), w, r)
		}
		return h
	}
	return m
}

func ContextRequestID(ctx context.Context) string {
	id, _ := ctx.Value(reqIDKey).(string)
	return id
}
