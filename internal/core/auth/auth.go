// Package auth guards the evaluation service with HMAC-hashed API keys.
//
// Keys look like rs-v1-<secret_id>-<random>. The secret_id selects one of
// the HMAC secrets loaded from the environment, so secrets can rotate while
// keys issued under the previous secret stay valid. Only the HMAC of a key
// is stored.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MetadataKey is the gRPC metadata header carrying the API key.
const MetadataKey = "x-api-key"

// lastUsedThrottle bounds last_used_at writes for busy keys.
const lastUsedThrottle = time.Minute

type contextKey string

const labelKey = contextKey("api_key_label")

// Queries is the subset of *db.Queries the authenticator needs.
type Queries interface {
	GetContext(ctx context.Context, name string, dest any, args ...any) error
	SelectContext(ctx context.Context, name string, dest any, args ...any) error
	ExecContext(ctx context.Context, name string, args ...any) (sql.Result, error)
}

// Key describes an issued API key without its secret material.
type Key struct {
	ID         string       `db:"api_key_id"`
	Label      string       `db:"label"`
	SecretID   string       `db:"secret_id"`
	CreatedAt  time.Time    `db:"created_at"`
	RevokedAt  sql.NullTime `db:"revoked_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
}

// Authenticator validates and issues API keys.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	logger  zerolog.Logger
	now     func() time.Time
}

// NewAuthenticator creates an authenticator over secrets (secret_id -> bytes).
func NewAuthenticator(secrets map[string][]byte, queries Queries, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		logger:  logger.With().Str("component", "auth").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate validates apiKey and returns the label it was issued under.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (string, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	var row struct {
		ID         string       `db:"api_key_id"`
		Label      string       `db:"label"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}
	err = a.queries.GetContext(ctx, "get-api-key-by-hash", &row, HashAPIKey(secret, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStore, err)
	}

	if row.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	if now := a.now(); !row.LastUsedAt.Valid || now.Sub(row.LastUsedAt.Time) > lastUsedThrottle {
		if _, err := a.queries.ExecContext(ctx, "update-last-used", now, row.ID); err != nil {
			a.logger.Warn().Err(err).Str("api_key_id", row.ID).Msg("failed to record key use")
		}
	}

	return row.Label, nil
}

// Issue creates and stores a new key under label. An empty secretID picks
// the newest configured secret (secret IDs are UUIDv7, so they sort by age).
// The returned plaintext key is not recoverable afterwards.
func (a *Authenticator) Issue(ctx context.Context, label, secretID string) (string, Key, error) {
	if strings.TrimSpace(label) == "" {
		return "", Key{}, fmt.Errorf("API key label is required")
	}
	if secretID == "" {
		secretID = a.newestSecretID()
	}
	secret, ok := a.secrets[secretID]
	if !ok {
		return "", Key{}, fmt.Errorf("%w: %q", ErrUnknownKey, secretID)
	}

	apiKey, err := GenerateAPIKey(secretID)
	if err != nil {
		return "", Key{}, err
	}

	k := Key{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Label:     label,
		SecretID:  secretID,
		CreatedAt: a.now(),
	}
	if _, err := a.queries.ExecContext(ctx, "insert-api-key",
		k.ID, k.Label, k.SecretID, HashAPIKey(secret, apiKey), k.CreatedAt); err != nil {
		return "", Key{}, fmt.Errorf("store API key: %w", err)
	}

	a.logger.Info().Str("api_key_id", k.ID).Str("label", label).Str("secret_id", secretID).Msg("API key issued")
	return apiKey, k, nil
}

// Revoke revokes every active key under label and returns how many were revoked.
func (a *Authenticator) Revoke(ctx context.Context, label string) (int64, error) {
	res, err := a.queries.ExecContext(ctx, "revoke-api-keys", a.now(), label)
	if err != nil {
		return 0, fmt.Errorf("revoke API keys: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke API keys: %w", err)
	}
	a.logger.Info().Str("label", label).Int64("revoked", n).Msg("API keys revoked")
	return n, nil
}

// List returns all issued keys, oldest first.
func (a *Authenticator) List(ctx context.Context) ([]Key, error) {
	var keys []Key
	if err := a.queries.SelectContext(ctx, "list-api-keys", &keys); err != nil {
		return nil, fmt.Errorf("list API keys: %w", err)
	}
	return keys, nil
}

func (a *Authenticator) newestSecretID() string {
	ids := make([]string, 0, len(a.secrets))
	for id := range a.secrets {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	return ids[len(ids)-1]
}

// exempt reports whether a method bypasses authentication (health probes).
func exempt(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/grpc.health.v1.Health/")
}

// UnaryInterceptor authenticates every non-exempt call and stores the key
// label in the handler context.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if exempt(info.FullMethod) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		keys := md.Get(MetadataKey)
		if len(keys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		label, err := a.Authenticate(ctx, keys[0])
		switch {
		case err == nil:
		case errors.Is(err, ErrKeyRevoked):
			return nil, status.Error(codes.PermissionDenied, err.Error())
		case errors.Is(err, ErrStore):
			a.logger.Error().Err(err).Str("method", info.FullMethod).Msg("authentication unavailable")
			return nil, status.Error(codes.Unavailable, ErrStore.Error())
		default:
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		return handler(context.WithValue(ctx, labelKey, label), req)
	}
}

// LabelFromContext returns the authenticated key label, or "" when the call
// was not authenticated.
func LabelFromContext(ctx context.Context) string {
	if label, ok := ctx.Value(labelKey).(string); ok {
		return label
	}
	return ""
}
