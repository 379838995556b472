// Package sessionrc writes the DuckDB CLI startup file so that interactive
// sessions in the container get the same storage options and attachment as
// the bootstrap.
package sessionrc

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Semprini/data-products/ducklake-init/internal/config"
	"github.com/Semprini/data-products/ducklake-init/internal/lake"
)

// fileMode keeps the credentials in the rendered file private to the owner.
const fileMode = 0o600

// Renderer substitutes $NAME and ${NAME} placeholders in TemplatePath and
// writes the result to OutputPath. $$ renders a literal $.
type Renderer struct {
	TemplatePath string
	OutputPath   string
	Values       map[string]string
}

// NewRenderer builds a Renderer whose values come from cfg.
func NewRenderer(cfg *config.Config) (*Renderer, error) {
	values, err := Values(cfg)
	if err != nil {
		return nil, err
	}
	return &Renderer{
		TemplatePath: cfg.RC.TemplatePath,
		OutputPath:   cfg.RC.OutputPath,
		Values:       values,
	}, nil
}

// Values returns every placeholder a template may use.
func Values(cfg *config.Config) (map[string]string, error) {
	settings, err := lake.SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"AWS_ACCESS_KEY_ID":     cfg.ObjectStore.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY": cfg.ObjectStore.SecretAccessKey,
		"AWS_REGION":            cfg.ObjectStore.Region,
		"POSTGRES_DB":           cfg.Postgres.DB,
		"POSTGRES_USER":         cfg.Postgres.User,
		"POSTGRES_PASSWORD":     cfg.Postgres.Password,
		"POSTGRES_HOST":         cfg.Postgres.Host,
		"POSTGRES_PORT":         strconv.Itoa(cfg.Postgres.Port),
		"BUCKET":                cfg.ObjectStore.Bucket,
		"S3_ENDPOINT":           settings.S3Endpoint,
		"S3_USE_SSL":            strconv.FormatBool(settings.S3UseSSL),
		"LAKE_NAME":             settings.Name,
		"DATA_PATH":             settings.DataPath,
	}, nil
}

// Render reads the template, substitutes every placeholder and writes the
// output atomically. A placeholder without a value is an error and nothing
// is written.
func (r *Renderer) Render() error {
	tpl, err := os.ReadFile(r.TemplatePath)
	if err != nil {
		return fmt.Errorf("reading rc template: %w", err)
	}

	out, err := Expand(string(tpl), r.Values)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", r.TemplatePath, err)
	}

	if err := writeFile(r.OutputPath, []byte(out)); err != nil {
		return fmt.Errorf("writing rc file: %w", err)
	}

	slog.Info("session rc rendered", "template", r.TemplatePath, "output", r.OutputPath)
	return nil
}

// Expand substitutes placeholders in s. Unknown names are collected and
// reported together.
func Expand(s string, values map[string]string) (string, error) {
	unknown := map[string]struct{}{}
	out := os.Expand(s, func(name string) string {
		if name == "$" {
			return "$"
		}
		v, ok := values[name]
		if !ok {
			unknown[name] = struct{}{}
		}
		return v
	})
	if len(unknown) > 0 {
		names := make([]string, 0, len(unknown))
		for n := range unknown {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", fmt.Errorf("unknown placeholders: %s", strings.Join(names, ", "))
	}
	return out, nil
}

func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
