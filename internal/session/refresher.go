package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tajious/bmconsole/internal/models"
	"github.com/tajious/bmconsole/internal/storage"
	"github.com/tajious/bmconsole/internal/upstream"
)

// TokenRefresher exchanges a refresh token for a new access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refresh string) (string, error)
}

// Refresher keeps the stored access token usable. The console does not hold
// the signing key, so tokens are parsed without verification and only their
// exp claim is read.
type Refresher struct {
	client TokenRefresher
	leeway time.Duration
	logger *slog.Logger
	parser *jwt.Parser
	now    func() time.Time
}

func NewRefresher(client TokenRefresher, leeway time.Duration, logger *slog.Logger) *Refresher {
	return &Refresher{
		client: client,
		leeway: leeway,
		logger: logger,
		parser: jwt.NewParser(),
		now:    time.Now,
	}
}

// Ensure brings st in line with the store and refreshes an access token that
// expires within the leeway. It reports whether st is still signed in.
// Transient refresh failures keep the current token.
func (r *Refresher) Ensure(ctx context.Context, st *State) bool {
	tokens := st.Tokens(ctx)
	if tokens.Authenticated() != st.Status().Authenticated {
		st.Load(ctx)
	}
	if !tokens.Authenticated() {
		return false
	}

	exp, ok := r.expiry(tokens.Access)
	if !ok || r.now().Add(r.leeway).Before(exp) {
		return true
	}

	if tokens.Refresh == "" {
		r.logger.Info("access token expired and no refresh token is stored")
		r.endSession(ctx, st)
		return false
	}

	access, err := r.client.Refresh(ctx, tokens.Refresh)
	if err != nil {
		if errors.Is(err, upstream.ErrRefreshRejected) {
			r.logger.Info("refresh token rejected", "error", err)
			r.endSession(ctx, st)
			return false
		}
		r.logger.Warn("refresh access token", "error", err)
		return true
	}

	if err := st.UpdateAccess(ctx, access); err != nil {
		if errors.Is(err, storage.ErrNoSession) {
			st.Load(ctx)
			return false
		}
		r.logger.Warn("store refreshed access token", "error", err)
	}
	return true
}

func (r *Refresher) expiry(token string) (time.Time, bool) {
	claims := &models.AccessClaims{}
	if _, _, err := r.parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (r *Refresher) endSession(ctx context.Context, st *State) {
	if err := st.Logout(ctx); err != nil {
		r.logger.Warn("log out after failed refresh", "error", err)
	}
}
