package clients

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sony/gobreaker"

	"github.com/Semprini/data-products/ducklake-init/internal/bootstrap"
	"github.com/Semprini/data-products/ducklake-init/internal/config"
)

const postgresProbeName = "postgres"

// dbConn abstracts the *pgx.Conn methods used here so that tests can inject
// a fake without standing up a real database.
type dbConn interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// PostgresClient checks that the lake catalog database accepts connections.
type PostgresClient struct {
	cfg            config.PostgresConfig
	attemptTimeout time.Duration
	cb             *gobreaker.CircuitBreaker
	connect        func(ctx context.Context, cfg config.PostgresConfig, timeout time.Duration) (dbConn, error)
}

// NewPostgresClient creates a PostgresClient. No connection is made at
// construction time. attemptTimeout bounds each connection attempt; cb guards
// the deep-health Probe only.
func NewPostgresClient(cfg config.PostgresConfig, attemptTimeout time.Duration, cb *gobreaker.CircuitBreaker) *PostgresClient {
	return &PostgresClient{
		cfg:            cfg,
		attemptTimeout: attemptTimeout,
		cb:             cb,
		connect:        realConnect,
	}
}

func (c *PostgresClient) Name() string { return postgresProbeName }

// Ping opens a single connection and closes it straight away. It is one
// readiness attempt: any error, including bad credentials, means "not ready
// yet" to the caller.
func (c *PostgresClient) Ping(ctx context.Context) error {
	conn, err := c.connect(ctx, c.cfg, c.attemptTimeout)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), c.attemptTimeout)
	defer cancel()
	return conn.Close(closeCtx)
}

// Probe connects and pings the catalog database inside the circuit breaker.
// After three consecutive failures the breaker opens and further calls
// return "circuit open" without dialling.
func (c *PostgresClient) Probe(ctx context.Context) bootstrap.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		conn, err := c.connect(ctx, c.cfg, c.attemptTimeout)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		defer conn.Close(context.Background()) //nolint:errcheck

		if err := conn.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		return nil, nil
	})

	return toProbeResult(postgresProbeName, start, err)
}

// realConnect opens a single pgx connection with a bounded dial.
func realConnect(ctx context.Context, cfg config.PostgresConfig, timeout time.Duration) (dbConn, error) {
	dsn := fmt.Sprintf("postgres://%s@%s/%s?sslmode=%s",
		url.UserPassword(cfg.User, cfg.Password).String(),
		hostPort(cfg.Host, cfg.Port),
		url.PathEscape(cfg.DB),
		url.QueryEscape(sslMode(cfg.SSLMode)),
	)

	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	connCfg.ConnectTimeout = timeout

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func sslMode(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}

// toProbeResult converts a breaker-wrapped outcome into a ProbeResult.
func toProbeResult(name string, start time.Time, err error) bootstrap.ProbeResult {
	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return bootstrap.ProbeResult{
			Name:      name,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return bootstrap.ProbeResult{
		Name:      name,
		OK:        true,
		LatencyMs: latency,
	}
}
