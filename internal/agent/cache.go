package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const analysisKeyPrefix = "mehelper:analysis:"

// CachedAnalysisClient serves repeated identical requests from Redis. Cache
// failures are logged and never fail an analysis.
type CachedAnalysisClient struct {
	next   AnalysisClient
	rdb    *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewCachedAnalysisClient(next AnalysisClient, rdb *redis.Client, ttl time.Duration, logger *logrus.Logger) *CachedAnalysisClient {
	return &CachedAnalysisClient{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return rdb, nil
}

func (c *CachedAnalysisClient) Analyze(ctx context.Context, req AnalysisRequest) (*Analysis, error) {
	key, err := analysisKey(req)
	if err != nil {
		return c.next.Analyze(ctx, req)
	}

	cached, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var a Analysis
		if jsonErr := json.Unmarshal(cached, &a); jsonErr == nil {
			c.logger.WithField("key", key).Debug("analysis cache hit")
			return &a, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.WithError(err).Warn("analysis cache read failed")
	}

	a, err := c.next.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(a); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.WithError(err).Warn("analysis cache write failed")
		}
	}
	return a, nil
}

func analysisKey(req AnalysisRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return analysisKeyPrefix + hex.EncodeToString(sum[:]), nil
}
