package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/api/weberr"
	"github.com/irsalhamdi/e-commerce-media/core/claims"
	"github.com/irsalhamdi/e-commerce-media/core/user"
)

func status(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return http.StatusOK
	}
	_, code, ok := weberr.Response(err)
	if !ok {
		t.Fatalf("error without a response: %v", err)
	}
	return code
}

func loginCookie(t *testing.T, session *scs.SessionManager, u user.User) *http.Cookie {
	t.Helper()

	login := LoadAndSave(session)(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return Login(ctx, session, u)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	if err := login(req.Context(), rec, req); err != nil {
		t.Fatal(err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("login did not set a session cookie")
	}
	return cookies[0]
}

func TestAuthenticate(t *testing.T) {
	session := scs.New()
	u := user.User{ID: "u1", Email: "ann@example.com", Name: "Ann", Role: claims.RoleUser}
	cookie := loginCookie(t, session, u)

	var got claims.Claims
	h := web.WrapMiddleware([]web.Middleware{LoadAndSave(session), Authenticate(session)},
		func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			got, _ = claims.Get(ctx)
			return nil
		})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(cookie)
	if code := status(t, h(req.Context(), httptest.NewRecorder(), req)); code != http.StatusOK {
		t.Fatalf("logged in request got %d", code)
	}
	if diff := cmp.Diff(u.Claims(), got); diff != "" {
		t.Fatalf("claims mismatch (-want +got):\n%s", diff)
	}

	anon := httptest.NewRequest(http.MethodGet, "/cart", nil)
	if code := status(t, h(anon.Context(), httptest.NewRecorder(), anon)); code != http.StatusUnauthorized {
		t.Fatalf("anonymous request got %d, want 401", code)
	}
}

func TestAdmin(t *testing.T) {
	session := scs.New()
	noop := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error { return nil }
	h := web.WrapMiddleware([]web.Middleware{LoadAndSave(session), Admin(session)}, noop)

	tests := []struct {
		name string
		role string
		want int
	}{
		{name: "user", role: claims.RoleUser, want: http.StatusForbidden},
		{name: "admin", role: claims.RoleAdmin, want: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cookie := loginCookie(t, session, user.User{ID: "u-" + tc.name, Role: tc.role})

			req := httptest.NewRequest(http.MethodPost, "/products", nil)
			req.AddCookie(cookie)
			if code := status(t, h(req.Context(), httptest.NewRecorder(), req)); code != tc.want {
				t.Fatalf("got %d, want %d", code, tc.want)
			}
		})
	}
}
