// ABOUTME: Authentication context for tracking the signed-in admin through handlers
// ABOUTME: Provides WithAccount/FromContext for propagating auth info via context

package auth

import (
	"context"

	"github.com/2389/support-gateway/internal/store"
)

type accountContextKey struct{}

// WithAccount returns a context carrying the authenticated account.
func WithAccount(ctx context.Context, account *store.Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// FromContext returns the authenticated account, or nil.
func FromContext(ctx context.Context) *store.Account {
	account, _ := ctx.Value(accountContextKey{}).(*store.Account)
	return account
}
