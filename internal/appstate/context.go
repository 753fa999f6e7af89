package appstate

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
)

// ErrNoProvider reports facade access outside the provider middleware.
// This is a programming error in the calling component and is surfaced
// immediately instead of silently defaulting.
var ErrNoProvider = errors.New("appstate: no facade in context; handler mounted outside the provider middleware")

type ctxKey struct{}

// NewContext returns a context carrying the facade.
func NewContext(ctx context.Context, f *Facade) context.Context {
	return context.WithValue(ctx, ctxKey{}, f)
}

// FromContext returns the facade attached to ctx, or ErrNoProvider when
// none is present.
func FromContext(ctx context.Context) (*Facade, error) {
	f, ok := ctx.Value(ctxKey{}).(*Facade)
	if !ok || f == nil {
		return nil, ErrNoProvider
	}
	return f, nil
}

// Middleware attaches the facade to every request context so handlers can
// recover it through FromContext.
func Middleware(f *Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(NewContext(c.Request.Context(), f))
		c.Next()
	}
}
