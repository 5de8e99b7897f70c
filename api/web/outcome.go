package web

import (
	"context"
	"net/http"
)

// Outcome is what a page-style handler decided to do. Failures travel as the
// error returned next to it, so the errors middleware handles them the same
// way it handles any other handler.
type Outcome interface {
	apply(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

type Render struct {
	Data   any
	Status int
}

func (o Render) apply(ctx context.Context, w http.ResponseWriter, _ *http.Request) error {
	status := o.Status
	if status == 0 {
		status = http.StatusOK
	}
	return Respond(ctx, w, o.Data, status)
}

type Redirect struct {
	Location string
	Status   int
}

func (o Redirect) apply(_ context.Context, w http.ResponseWriter, r *http.Request) error {
	status := o.Status
	if status == 0 {
		status = http.StatusSeeOther
	}
	http.Redirect(w, r, o.Location, status)
	return nil
}

type OutcomeHandler func(ctx context.Context, r *http.Request) (Outcome, error)

// Adapt interprets the outcome of h on the response writer.
func Adapt(h OutcomeHandler) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		out, err := h(ctx, r)
		if err != nil {
			return err
		}
		if out == nil {
			return Respond(ctx, w, nil, http.StatusNoContent)
		}
		return out.apply(ctx, w, r)
	}
}
