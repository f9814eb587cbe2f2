package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	id "verikey/pkg/domain"
)

var isRevokedDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "verikey_is_token_revoked_duration_ms",
	Help:    "Latency of token revocation checks in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

// Redis key prefix for revoked tokens.
const revokedTokenKeyPrefix = "trl:jti:"

// RedisList is the Redis-backed revocation list. The production choice for
// multi-instance deployments: revocation state is shared and the TTL is
// enforced by Redis itself.
type RedisList struct {
	client *redis.Client
}

func NewRedisList(client *redis.Client) *RedisList {
	return &RedisList{client: client}
}

// Revoke adds the jti with a TTL. SET with expiry is atomic; the value is a
// marker, key existence is what matters.
func (l *RedisList) Revoke(ctx context.Context, tokenID id.TokenID, _ id.UserID, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	return l.client.Set(ctx, revokedTokenKeyPrefix+tokenID.String(), "1", ttl).Err()
}

// IsTokenRevoked checks for the jti. A missing key means not revoked or
// already expired, which are equivalent.
func (l *RedisList) IsTokenRevoked(ctx context.Context, tokenID id.TokenID) (bool, error) {
	start := time.Now()
	defer func() {
		isRevokedDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	_, err := l.client.Get(ctx, revokedTokenKeyPrefix+tokenID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
