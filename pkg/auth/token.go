package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies masthead tokens
	TokenPrefix = "mh_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token
// Format: mh_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	return fullToken, tg.HashToken(fullToken), TokenPrefix + encodedToken[:8], nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// TokenManager stores hashed API tokens and resolves bearer tokens to identities
type TokenManager struct {
	db        *sql.DB
	generator *TokenGenerator
	now       func() time.Time
}

// NewTokenManager creates a new token manager
func NewTokenManager(db *sql.DB) *TokenManager {
	return &TokenManager{
		db:        db,
		generator: NewTokenGenerator(),
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	tm.now = now
	return tm
}

func (tm *TokenManager) timestamp() time.Time {
	return tm.now().UTC().Truncate(time.Microsecond)
}

// CreateToken issues a token for userID. The plaintext token is returned once
// and only its hash is stored.
func (tm *TokenManager) CreateToken(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		CreatedAt:   tm.timestamp(),
	}
	if expiresAt != nil {
		exp := expiresAt.UTC().Truncate(time.Microsecond)
		apiToken.ExpiresAt = &exp
	}

	err = tm.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, apiToken.UserID, apiToken.TokenHash, apiToken.TokenPrefix, apiToken.Name, apiToken.ExpiresAt, apiToken.CreatedAt,
	).Scan(&apiToken.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ResolveToken validates a bearer token and returns the identity it belongs to
func (tm *TokenManager) ResolveToken(ctx context.Context, token string) (*Identity, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var (
		apiToken  APIToken
		email     string
		expiresAt sql.NullTime
		revokedAt sql.NullTime
	)
	err := tm.db.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, u.email, t.expires_at, t.revoked_at
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1
	`, tm.generator.HashToken(token)).Scan(&apiToken.ID, &apiToken.UserID, &email, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	if revokedAt.Valid {
		apiToken.RevokedAt = &revokedAt.Time
	}
	if expiresAt.Valid {
		apiToken.ExpiresAt = &expiresAt.Time
	}

	now := tm.timestamp()
	if apiToken.IsRevoked() {
		return nil, ErrTokenRevoked
	}
	if apiToken.IsExpired(now) {
		return nil, ErrTokenExpired
	}

	if _, err := tm.db.ExecContext(ctx, "UPDATE api_tokens SET last_used_at = $1 WHERE id = $2", now, apiToken.ID); err != nil {
		return nil, fmt.Errorf("failed to record token use: %w", err)
	}

	return &Identity{UserID: apiToken.UserID, Email: email}, nil
}

// RevokeToken marks a token as revoked. Revoking twice is not an error.
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID int64) error {
	result, err := tm.db.ExecContext(ctx,
		"UPDATE api_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL",
		tm.timestamp(), tokenID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		var exists int
		err := tm.db.QueryRowContext(ctx, "SELECT 1 FROM api_tokens WHERE id = $1", tokenID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidToken
		}
		if err != nil {
			return fmt.Errorf("failed to look up token: %w", err)
		}
	}
	return nil
}

const tokenColumns = "id, user_id, token_prefix, name, expires_at, last_used_at, created_at, revoked_at"

func scanToken(scan func(dest ...interface{}) error) (*APIToken, error) {
	var (
		token      APIToken
		expiresAt  sql.NullTime
		lastUsedAt sql.NullTime
		revokedAt  sql.NullTime
	)
	if err := scan(&token.ID, &token.UserID, &token.TokenPrefix, &token.Name, &expiresAt, &lastUsedAt, &token.CreatedAt, &revokedAt); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		token.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		token.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		token.RevokedAt = &revokedAt.Time
	}
	return &token, nil
}

// GetToken returns token metadata by id. The hash is never loaded.
func (tm *TokenManager) GetToken(ctx context.Context, tokenID int64) (*APIToken, error) {
	row := tm.db.QueryRowContext(ctx, "SELECT "+tokenColumns+" FROM api_tokens WHERE id = $1", tokenID)
	token, err := scanToken(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

// ListTokens returns the unrevoked tokens of userID, newest first
func (tm *TokenManager) ListTokens(ctx context.Context, userID int64) ([]*APIToken, error) {
	rows, err := tm.db.QueryContext(ctx, `
		SELECT `+tokenColumns+`
		FROM api_tokens
		WHERE user_id = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*APIToken, 0)
	for rows.Next() {
		token, err := scanToken(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}
