// Package token issues and verifies the signed session tokens handed out
// at sign-in. Access tokens are short-lived and stateless; refresh tokens
// are long-lived and only valid while their hash is stored.
package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/refreshtoken"
	"github.com/xraph/bastion/store"
)

// Token types carried in the "typ" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the payload of every Bastion token. The subject is the user id.
type Claims struct {
	CompanyID string `json:"companyId"`
	Email     string `json:"email,omitempty"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// Config holds signing secrets and lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	// AccessTTL defaults to 15 minutes.
	AccessTTL time.Duration
	// RefreshTTL defaults to 30 days.
	RefreshTTL time.Duration
	// Issuer defaults to "bastion".
	Issuer string
}

func (c *Config) defaults() {
	if c.AccessTTL <= 0 {
		c.AccessTTL = 15 * time.Minute
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 30 * 24 * time.Hour
	}
	if c.Issuer == "" {
		c.Issuer = "bastion"
	}
}

// Service signs, verifies, rotates and revokes tokens.
type Service struct {
	cfg    Config
	store  refreshtoken.Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a token service backed by the given refresh-token
// store. Both secrets are required and must differ.
func NewService(rs refreshtoken.Store, cfg Config, opts ...Option) (*Service, error) {
	if rs == nil {
		return nil, errors.New("token: refresh token store is required")
	}
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	cfg.defaults()
	s := &Service{cfg: cfg, store: rs, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// IssueAccessToken signs a short-lived access token for p.
func (s *Service) IssueAccessToken(p bastion.Principal) (string, error) {
	if !p.Valid() {
		return "", bastion.ErrInvalidInput
	}
	tok, _, err := s.sign(p, TypeAccess, s.cfg.AccessSecret, s.cfg.AccessTTL)
	return tok, err
}

// VerifyAccessToken checks an access token and returns its principal.
func (s *Service) VerifyAccessToken(raw string) (bastion.Principal, error) {
	claims, err := s.parse(raw, TypeAccess, s.cfg.AccessSecret)
	if err != nil {
		return bastion.Principal{}, err
	}
	return claims.principal()
}

// IssueRefreshToken signs a refresh token for p and stores its hash.
func (s *Service) IssueRefreshToken(ctx context.Context, p bastion.Principal) (string, error) {
	if !p.Valid() {
		return "", bastion.ErrInvalidInput
	}
	tok, exp, err := s.sign(p, TypeRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
	if err != nil {
		return "", err
	}
	if err := s.store.CreateRefreshToken(ctx, s.record(p.UserID, tok, exp)); err != nil {
		return "", fmt.Errorf("token: store refresh token: %w", err)
	}
	return tok, nil
}

// VerifyRefreshToken checks the signature and type of a refresh token and
// that it is still stored and unexpired.
func (s *Service) VerifyRefreshToken(ctx context.Context, raw string) (bastion.Principal, error) {
	claims, err := s.parse(raw, TypeRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return bastion.Principal{}, err
	}
	p, err := claims.principal()
	if err != nil {
		return bastion.Principal{}, err
	}
	stored, err := s.store.GetRefreshToken(ctx, p.UserID, Hash(raw))
	if errors.Is(err, store.ErrNotFound) {
		return bastion.Principal{}, bastion.ErrInvalidToken
	}
	if err != nil {
		return bastion.Principal{}, fmt.Errorf("token: get refresh token: %w", err)
	}
	if stored.Expired(s.now()) {
		return bastion.Principal{}, bastion.ErrInvalidToken
	}
	return p, nil
}

// RotateRefreshToken replaces raw with a freshly issued token. The old
// token stops working immediately; presenting it again fails with
// ErrInvalidToken.
func (s *Service) RotateRefreshToken(ctx context.Context, raw string) (string, bastion.Principal, error) {
	p, err := s.VerifyRefreshToken(ctx, raw)
	if err != nil {
		return "", bastion.Principal{}, err
	}
	next, exp, err := s.sign(p, TypeRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
	if err != nil {
		return "", bastion.Principal{}, err
	}
	err = s.store.ReplaceRefreshToken(ctx, p.UserID, Hash(raw), s.record(p.UserID, next, exp))
	if errors.Is(err, store.ErrNotFound) {
		// Lost a race with another rotation of the same token.
		return "", bastion.Principal{}, bastion.ErrInvalidToken
	}
	if err != nil {
		return "", bastion.Principal{}, fmt.Errorf("token: rotate refresh token: %w", err)
	}
	return next, p, nil
}

// RevokeRefreshToken deletes one of the user's refresh tokens. Revoking a
// token that is not stored is not an error.
func (s *Service) RevokeRefreshToken(ctx context.Context, userID id.UserID, raw string) error {
	if err := s.store.RevokeRefreshToken(ctx, userID, Hash(raw)); err != nil {
		return fmt.Errorf("token: revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAll deletes every refresh token of the user.
func (s *Service) RevokeAll(ctx context.Context, userID id.UserID) error {
	if err := s.store.RevokeUserRefreshTokens(ctx, userID); err != nil {
		return fmt.Errorf("token: revoke all: %w", err)
	}
	return nil
}

// SweepExpired deletes expired refresh tokens and returns how many were
// removed.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredRefreshTokens(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("token: sweep expired: %w", err)
	}
	if n > 0 {
		s.logger.Info("bastion: swept expired refresh tokens", slog.Int64("count", n))
	}
	return n, nil
}

// Hash returns the stored form of a raw refresh token.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (s *Service) sign(p bastion.Principal, typ string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		CompanyID: p.CompanyID.String(),
		Email:     p.Email,
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return tok, exp, nil
}

func (s *Service) parse(raw, typ string, secret []byte) (*Claims, error) {
	if raw == "" {
		return nil, bastion.ErrInvalidToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, bastion.ErrInvalidToken
			}
			return secret, nil
		},
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.Type != typ {
		return nil, bastion.ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) record(userID id.UserID, raw string, exp time.Time) *refreshtoken.Token {
	return &refreshtoken.Token{
		ID:        id.NewRefreshTokenID(),
		UserID:    userID,
		TokenHash: Hash(raw),
		ExpiresAt: exp,
		CreatedAt: s.now(),
	}
}

func (c *Claims) principal() (bastion.Principal, error) {
	userID, err := id.ParseUserID(c.Subject)
	if err != nil {
		return bastion.Principal{}, bastion.ErrInvalidToken
	}
	companyID, err := id.ParseCompanyID(c.CompanyID)
	if err != nil {
		return bastion.Principal{}, bastion.ErrInvalidToken
	}
	return bastion.Principal{CompanyID: companyID, UserID: userID, Email: c.Email}, nil
}
