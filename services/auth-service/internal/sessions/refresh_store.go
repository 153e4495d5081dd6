package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("refresh token not found")

// RefreshStore keeps refresh sessions in Redis, keyed by the SHA-256 of the
// raw token. Expiry is enforced by key TTL, revocation by deletion.
type RefreshStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRefreshStore(rdb *redis.Client, prefix string) *RefreshStore {
	if prefix == "" {
		prefix = "refresh"
	}
	return &RefreshStore{rdb: rdb, prefix: prefix}
}

// Dial opens a Redis client and verifies connectivity before returning it.
// The caller owns the client and must Close it on shutdown.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (s *RefreshStore) Save(ctx context.Context, rawToken string, userID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.key(rawToken), userID, ttl).Err()
}

// Lookup returns the user ID bound to the token. Expired and revoked tokens
// are indistinguishable from never-issued ones.
func (s *RefreshStore) Lookup(ctx context.Context, rawToken string) (string, error) {
	userID, err := s.rdb.Get(ctx, s.key(rawToken)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *RefreshStore) Revoke(ctx context.Context, rawToken string) error {
	return s.rdb.Del(ctx, s.key(rawToken)).Err()
}

func (s *RefreshStore) key(rawToken string) string {
	return s.prefix + ":" + HashToken(rawToken)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
