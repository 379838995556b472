package clients

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Semprini/data-products/ducklake-init/internal/bootstrap"
	"github.com/Semprini/data-products/ducklake-init/internal/config"
)

const objectStoreProbeName = "objectstore"

// ObjectStoreClient checks the S3-compatible store's unauthenticated
// liveness endpoint (MinIO serves /minio/health/live).
type ObjectStoreClient struct {
	healthURL      string
	attemptTimeout time.Duration
	cb             *gobreaker.CircuitBreaker
	httpDo         func(req *http.Request) (*http.Response, error)
}

// NewObjectStoreClient constructs an ObjectStoreClient. No HTTP calls are
// made at construction time.
func NewObjectStoreClient(cfg config.ObjectStoreConfig, attemptTimeout time.Duration, cb *gobreaker.CircuitBreaker) *ObjectStoreClient {
	path := cfg.HealthPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &ObjectStoreClient{
		healthURL:      strings.TrimRight(cfg.EndpointURL, "/") + path,
		attemptTimeout: attemptTimeout,
		cb:             cb,
		httpDo:         http.DefaultClient.Do,
	}
}

func (c *ObjectStoreClient) Name() string { return objectStoreProbeName }

// Ping sends one HEAD request to the health endpoint. Only HTTP 200 counts
// as ready; transport errors and every other status are "not ready yet".
func (c *ObjectStoreClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.healthURL, nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := c.httpDo(req)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Probe runs Ping inside the circuit breaker for deep health reporting.
func (c *ObjectStoreClient) Probe(ctx context.Context) bootstrap.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.Ping(ctx)
	})

	return toProbeResult(objectStoreProbeName, start, err)
}
