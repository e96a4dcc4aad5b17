// Package apikey manages the admin API keys that guard the cache and
// analytics endpoints. Raw keys are generated with crypto/rand and only
// their SHA-256 digest is stored.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/postgres"
)

// KeyPrefix starts every generated key.
const KeyPrefix = "pv_admin_"

// cacheTTL bounds how long a validated key is trusted without a lookup.
// Revocations through this Validator take effect at once; revocations by
// another replica take up to cacheTTL.
const cacheTTL = 30 * time.Second

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rate_limit"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (k *KeyInfo) expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

type cached struct {
	info  KeyInfo
	until time.Time
}

// Validator checks admin keys against the api_keys table, keeping recent
// positive lookups in memory.
type Validator struct {
	db     *postgres.Client
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cached
}

func NewValidator(db *postgres.Client) *Validator {
	return &Validator{
		db:     db,
		now:    time.Now,
		cache:  make(map[string]cached),
		logger: slog.Default().With("component", "apikey-validator"),
	}
}

const keyColumns = `id, name, rate_limit, is_active, created_at, expires_at`

// Validate resolves rawKey to its metadata. Keys without KeyPrefix are
// rejected without touching the database.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	if !strings.HasPrefix(rawKey, KeyPrefix) {
		return nil, ErrInvalidKey
	}
	hash := HashKey(rawKey)
	now := v.now()
	if info, ok := v.lookup(hash, now); ok {
		if info.expired(now) {
			return nil, ErrExpiredKey
		}
		return &info, nil
	}

	info, err := scanKey(v.db.DB.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1 AND is_active`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("looking up api key: %w", err)
	}
	if info.expired(now) {
		return nil, ErrExpiredKey
	}
	v.store(hash, *info, now)
	return info, nil
}

// CreateKey stores a new key and returns it in raw form. Only the hash is
// kept, so the raw key cannot be shown again.
func (v *Validator) CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, error) {
	raw, err := generateRawKey()
	if err != nil {
		return "", err
	}
	if _, err := v.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, rate_limit, expires_at) VALUES ($1, $2, $3, $4)`,
		HashKey(raw), name, rateLimit, expiresAt); err != nil {
		return "", fmt.Errorf("creating api key %q: %w", name, err)
	}
	v.logger.Info("admin key created", "name", name, "rate_limit", rateLimit, "expires_at", expiresAt)
	return raw, nil
}

// RevokeKey deactivates rawKey.
func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	hash := HashKey(rawKey)
	var name string
	err := v.db.DB.QueryRowContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE key_hash = $1 AND is_active RETURNING name`, hash).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidKey
	}
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	v.mu.Lock()
	delete(v.cache, hash)
	v.mu.Unlock()
	v.logger.Info("admin key revoked", "name", name)
	return nil
}

// ListKeys returns the active keys, newest first.
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]KeyInfo, 0)
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key: %w", err)
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

func (v *Validator) lookup(hash string, now time.Time) (KeyInfo, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.cache[hash]
	if !ok || now.After(c.until) {
		delete(v.cache, hash)
		return KeyInfo{}, false
	}
	return c.info, true
}

func (v *Validator) store(hash string, info KeyInfo, now time.Time) {
	v.mu.Lock()
	v.cache[hash] = cached{info: info, until: now.Add(cacheTTL)}
	v.mu.Unlock()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*KeyInfo, error) {
	var (
		k       KeyInfo
		expires sql.NullTime
	)
	if err := row.Scan(&k.ID, &k.Name, &k.RateLimit, &k.IsActive, &k.CreatedAt, &expires); err != nil {
		return nil, err
	}
	if expires.Valid {
		k.ExpiresAt = &expires.Time
	}
	return &k, nil
}

// HashKey returns the hex SHA-256 digest stored for raw.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(b), nil
}
