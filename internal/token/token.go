// Package token issues, rotates and revokes the access/refresh token
// pair. It is the only writer of persisted token rows. Access tokens are
// stateless signed claims; refresh tokens are signed too but must also
// match a persisted row, which is what makes rotation single-use.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avolkov/converse/internal/apperr"
	"github.com/avolkov/converse/internal/database"
	"github.com/avolkov/converse/internal/types"
)

type AccessClaims struct {
	UserId   int    `json:"uid"`
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
	jwt.RegisteredClaims
}

func (c AccessClaims) Identity() types.Identity {
	return types.Identity{
		Id:       c.UserId,
		Role:     c.Role,
		Verified: c.Verified,
	}
}

type RefreshClaims struct {
	UserId int `json:"uid"`
	jwt.RegisteredClaims
}

type Pair struct {
	AccessToken  string
	RefreshToken string
}

type Options struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type Authority struct {
	log       zerolog.Logger
	db        database.Repository
	opts      Options
	stopSweep chan struct{}
	sweepDone chan struct{}
}

func NewAuthority(logger zerolog.Logger, db database.Repository, opts Options) *Authority {
	return &Authority{
		log:       logger,
		db:        db,
		opts:      opts,
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
}

func (a *Authority) signAccess(userId int, role string, verified bool) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserId:   userId,
		Role:     role,
		Verified: verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userId),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.opts.AccessTTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.opts.AccessSecret)
}

// signRefresh carries a jti so two tokens for the same user signed in
// the same second still differ.
func (a *Authority) signRefresh(userId int) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		UserId: userId,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userId),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.opts.RefreshTTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.opts.RefreshSecret)
}

// Issue creates a token pair for the user. The refresh token row is
// persisted before the pair is handed back.
func (a *Authority) Issue(userId int, role string, verified bool) (Pair, error) {
	accessToken, err := a.signAccess(userId, role, verified)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := a.signRefresh(userId)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	expiresAt := time.Now().Add(a.opts.RefreshTTL)
	if err := a.db.CreateToken(refreshToken, userId, expiresAt); err != nil {
		return Pair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	a.log.Info().Int("user_id", userId).Msg("token pair issued")

	return Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Rotate exchanges a refresh token for a fresh pair. The presented token
// must verify and still match a persisted row; the row swap is atomic,
// so replaying a superseded token always fails. Failures are reported as
// a single opaque category.
func (a *Authority) Rotate(oldRefreshToken string) (Pair, error) {
	claims, err := a.VerifyRefresh(oldRefreshToken)
	if err != nil {
		return Pair{}, err
	}

	user, err := a.db.GetAccountById(claims.UserId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return Pair{}, apperr.ErrUnauthenticated
		}
		return Pair{}, fmt.Errorf("load account: %w", err)
	}

	accessToken, err := a.signAccess(user.Id, user.Role, user.IsVerified)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := a.signRefresh(user.Id)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	expiresAt := time.Now().Add(a.opts.RefreshTTL)
	if err := a.db.ReplaceToken(oldRefreshToken, refreshToken, expiresAt); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// a verified token with no row was already rotated or
			// revoked; possible replay of a stolen token
			a.log.Warn().Int("user_id", user.Id).Msg("refresh token replay detected")
			return Pair{}, apperr.ErrUnauthenticated
		}
		return Pair{}, fmt.Errorf("replace refresh token: %w", err)
	}

	a.log.Info().Int("user_id", user.Id).Msg("token pair rotated")

	return Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// VerifyAccess checks signature and expiry and returns the identity
// claims. All failures collapse into ErrUnauthenticated.
func (a *Authority) VerifyAccess(tokenString string) (types.Identity, error) {
	var claims AccessClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.opts.AccessSecret, nil
	})
	if err != nil || !token.Valid {
		return types.Identity{}, apperr.ErrUnauthenticated
	}

	return claims.Identity(), nil
}

func (a *Authority) VerifyRefresh(tokenString string) (RefreshClaims, error) {
	var claims RefreshClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.opts.RefreshSecret, nil
	})
	if err != nil || !token.Valid {
		return RefreshClaims{}, apperr.ErrUnauthenticated
	}

	return claims, nil
}

// Revoke deletes the persisted row for a refresh token. Revoking a token
// that is already gone is not an error; the caller is logged out either
// way.
func (a *Authority) Revoke(token string) error {
	if err := a.db.DeleteToken(token); err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("delete token: %w", err)
	}

	return nil
}

func (a *Authority) RevokeAll(userId int) error {
	if err := a.db.DeleteTokensForUser(userId); err != nil {
		return fmt.Errorf("delete tokens for user %d: %w", userId, err)
	}

	a.log.Info().Int("user_id", userId).Msg("all refresh tokens revoked")

	return nil
}

// StartSweeper deletes expired token rows on the given interval until
// StopSweeper is called. Verification rejects expired tokens regardless,
// so the sweep is housekeeping, not a correctness dependency.
func (a *Authority) StartSweeper(interval time.Duration) {
	go func() {
		defer close(a.sweepDone)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n, err := a.db.DeleteExpiredTokens(time.Now())
				if err != nil {
					a.log.Error().Err(err).Msg("sweep expired tokens")
					continue
				}
				a.log.Debug().Int64("count", n).Msg("expired tokens swept")
			case <-a.stopSweep:
				return
			}
		}
	}()
}

func (a *Authority) StopSweeper() {
	close(a.stopSweep)
	<-a.sweepDone
}
