package sessionrc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Semprini/data-products/ducklake-init/internal/config"
)

func testConfig(dir string) *config.Config {
	return &config.Config{
		Postgres: config.PostgresConfig{Host: "postgres", Port: 5432, User: "lake", Password: "pg-secret", DB: "catalog"},
		ObjectStore: config.ObjectStoreConfig{
			EndpointURL:     "http://minio:9000",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "miniosecret",
			Region:          "us-east-1",
			Bucket:          "warehouse",
		},
		Lake: config.LakeConfig{Name: "the_ducklake", DataPrefix: "lake"},
		RC: config.RCConfig{
			TemplatePath: filepath.Join(dir, "duckdbrc.tpl"),
			OutputPath:   filepath.Join(dir, "home", ".duckdbrc"),
		},
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()

	values := map[string]string{"BUCKET": "warehouse", "AWS_REGION": "eu-west-2"}

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr string
	}{
		{name: "bare name", in: "s3://$BUCKET/lake/", want: "s3://warehouse/lake/"},
		{name: "braced name", in: "SET s3_region='${AWS_REGION}';", want: "SET s3_region='eu-west-2';"},
		{name: "escaped dollar", in: "cost $$5 in $BUCKET", want: "cost $5 in warehouse"},
		{name: "no placeholders", in: "USE the_ducklake;", want: "USE the_ducklake;"},
		{name: "unknown names reported together", in: "$NOPE ${ALSO_NOPE} $BUCKET", wantErr: "unknown placeholders: ALSO_NOPE, NOPE"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Expand(tc.in, values)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRender_WritesPrivateFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := testConfig(dir)
	require.NoError(t, os.WriteFile(cfg.RC.TemplatePath,
		[]byte("SET s3_secret_access_key='${AWS_SECRET_ACCESS_KEY}';\nUSE ${LAKE_NAME};\n"), 0o644))

	r, err := NewRenderer(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Render())

	got, err := os.ReadFile(cfg.RC.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "SET s3_secret_access_key='miniosecret';\nUSE the_ducklake;\n", string(got))

	info, err := os.Stat(cfg.RC.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRender_ShippedTemplate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.RC.TemplatePath = filepath.Join("..", "..", "duckdbrc.tpl")

	r, err := NewRenderer(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Render())

	got, err := os.ReadFile(cfg.RC.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(got), "SET s3_endpoint='minio:9000';")
	assert.Contains(t, string(got),
		"ATTACH 'ducklake:postgres:dbname=catalog host=postgres port=5432 user=lake password=pg-secret' AS the_ducklake (DATA_PATH 's3://warehouse/lake/');")
	assert.NotContains(t, string(got), "$")
}

func TestRender_UnknownPlaceholderWritesNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := testConfig(dir)
	require.NoError(t, os.WriteFile(cfg.RC.TemplatePath, []byte("SET x='${MISSING}';"), 0o644))

	r, err := NewRenderer(cfg)
	require.NoError(t, err)

	err = r.Render()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MISSING")

	_, statErr := os.Stat(cfg.RC.OutputPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRender_MissingTemplate(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t.TempDir())
	r, err := NewRenderer(cfg)
	require.NoError(t, err)

	err = r.Render()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading rc template")
}

func TestRender_OverwritesExisting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := testConfig(dir)
	require.NoError(t, os.WriteFile(cfg.RC.TemplatePath, []byte("USE ${LAKE_NAME};"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.RC.OutputPath), 0o755))
	require.NoError(t, os.WriteFile(cfg.RC.OutputPath, []byte("stale"), 0o644))

	r, err := NewRenderer(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Render())

	got, err := os.ReadFile(cfg.RC.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "USE the_ducklake;", string(got))
}
