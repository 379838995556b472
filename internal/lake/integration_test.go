//go:build integration

package lake

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Semprini/data-products/ducklake-init/internal/clients"
	"github.com/Semprini/data-products/ducklake-init/internal/config"
)

const (
	postgresImage         = "postgres:16-alpine"
	minioImage            = "minio/minio:latest"
	containerStartTimeout = 120 * time.Second

	testUser     = "lake"
	testPassword = "lake-password"
	testDB       = "catalog"
	testBucket   = "warehouse"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start %s", req.Image)
	t.Cleanup(func() {
		if err := c.Terminate(ctx); err != nil {
			t.Logf("warning: failed to terminate %s: %v", req.Image, err)
		}
	})
	return c
}

func mappedHostPort(t *testing.T, c testcontainers.Container, port string) (string, int) {
	t.Helper()
	ctx := context.Background()

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, port)
	require.NoError(t, err)
	n, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)
	return host, n
}

// setupLakeDependencies starts a catalog database and an object store and
// returns a config pointing at both, with the bucket already created.
func setupLakeDependencies(t *testing.T) *config.Config {
	t.Helper()

	pg := startContainer(t, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
			"POSTGRES_DB":       testDB,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(containerStartTimeout),
	})
	minio := startContainer(t, testcontainers.ContainerRequest{
		Image:        minioImage,
		ExposedPorts: []string{"9000/tcp"},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").
			WithPort("9000/tcp").
			WithStartupTimeout(containerStartTimeout),
	})

	pgHost, pgPort := mappedHostPort(t, pg, "5432")
	minioHost, minioPort := mappedHostPort(t, minio, "9000")

	cfg := &config.Config{
		Postgres: config.PostgresConfig{
			Host: pgHost, Port: pgPort, User: testUser, Password: testPassword, DB: testDB, SSLMode: "disable",
		},
		ObjectStore: config.ObjectStoreConfig{
			EndpointURL:     fmt.Sprintf("http://%s:%d", minioHost, minioPort),
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			Region:          config.DefaultRegion,
			Bucket:          testBucket,
		},
		Lake: config.LakeConfig{Name: "the_ducklake", DataPrefix: "lake"},
	}

	ctx := context.Background()
	provisioner, err := clients.NewBucketProvisioner(ctx, cfg.ObjectStore)
	require.NoError(t, err)
	require.NoError(t, provisioner.Ensure(ctx, testBucket))

	return cfg
}

// A second attach against the same catalog must reopen it with its tables
// intact rather than initialise a new one.
func TestAttachIntegration_ReattachKeepsCatalog(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := setupLakeDependencies(t)
	settings, err := SettingsFromConfig(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	first := New(settings, "")
	require.NoError(t, first.Attach(ctx))
	_, err = first.session.ExecContext(ctx, "CREATE TABLE marker (id INTEGER)")
	require.NoError(t, err)
	_, err = first.session.ExecContext(ctx, "INSERT INTO marker VALUES (1)")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := New(settings, "")
	defer second.Close() //nolint:errcheck
	require.NoError(t, second.Attach(ctx), "attaching an initialised catalog must succeed")

	_, err = second.session.ExecContext(ctx, "INSERT INTO marker VALUES (2)")
	require.NoError(t, err, "table created by the first session must still exist")

	require.True(t, second.Probe(ctx).OK)
}
