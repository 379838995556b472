package lake

import (
	"fmt"
	"strings"

	"github.com/Semprini/data-products/ducklake-init/internal/config"
)

// Step names, in execution order.
const (
	StepOpenSession       = "open-session"
	StepInstallExtensions = "install-extensions"
	StepConfigureStorage  = "configure-storage"
	StepAttach            = "attach"
	StepUse               = "use"
)

const redactedValue = "***"

// Settings is everything the engine needs to attach the lake.
type Settings struct {
	// Name is the attachment alias, e.g. the_ducklake.
	Name    string
	Catalog config.PostgresConfig
	// DataPath is the s3:// prefix that holds data files.
	DataPath string

	S3Endpoint      string // host:port
	S3UseSSL        bool
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SettingsFromConfig derives engine settings from a validated config.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	endpoint, useSSL, err := cfg.ObjectStore.S3Endpoint()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Name:            cfg.Lake.Name,
		Catalog:         cfg.Postgres,
		DataPath:        cfg.DataPath(),
		S3Endpoint:      endpoint,
		S3UseSSL:        useSSL,
		Region:          cfg.ObjectStore.Region,
		AccessKeyID:     cfg.ObjectStore.AccessKeyID,
		SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
	}, nil
}

// CatalogURI is the DuckLake catalog location for ATTACH.
func (s Settings) CatalogURI() string {
	return "ducklake:postgres:" + s.Catalog.KeywordDSN()
}

func (s Settings) redacted() Settings {
	r := s
	if r.AccessKeyID != "" {
		r.AccessKeyID = redactedValue
	}
	if r.SecretAccessKey != "" {
		r.SecretAccessKey = redactedValue
	}
	if r.Catalog.Password != "" {
		r.Catalog.Password = redactedValue
	}
	return r
}

// secrets lists the raw values that must never reach logs.
func (s Settings) secrets() []string {
	var out []string
	for _, v := range []string{s.SecretAccessKey, s.Catalog.Password, s.AccessKeyID} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Statement is one SQL statement of the attach sequence. Redacted is safe
// to log.
type Statement struct {
	Step     string
	SQL      string
	Redacted string
}

// Plan returns the ordered statements that attach the lake. Every storage
// option is set before ATTACH, and USE comes last.
func Plan(s Settings) []Statement {
	raw := build(s)
	safe := build(s.redacted())

	out := make([]Statement, len(raw))
	for i := range raw {
		out[i] = Statement{Step: raw[i].Step, SQL: raw[i].SQL, Redacted: safe[i].SQL}
	}
	return out
}

func build(s Settings) []Statement {
	stmts := []Statement{
		{Step: StepInstallExtensions, SQL: "INSTALL ducklake"},
		{Step: StepInstallExtensions, SQL: "INSTALL postgres"},
		{Step: StepInstallExtensions, SQL: "LOAD ducklake"},
		{Step: StepInstallExtensions, SQL: "LOAD postgres"},
	}

	options := []struct{ key, val string }{
		{"s3_url_style", "path"},
		{"s3_endpoint", s.S3Endpoint},
		{"s3_access_key_id", s.AccessKeyID},
		{"s3_secret_access_key", s.SecretAccessKey},
		{"s3_region", s.Region},
		{"s3_use_ssl", fmt.Sprintf("%t", s.S3UseSSL)},
	}
	for _, o := range options {
		stmts = append(stmts, Statement{
			Step: StepConfigureStorage,
			SQL:  fmt.Sprintf("SET %s=%s", o.key, quoteLiteral(o.val)),
		})
	}

	stmts = append(stmts,
		Statement{
			Step: StepAttach,
			SQL: fmt.Sprintf("ATTACH %s AS %s (DATA_PATH %s)",
				quoteLiteral(s.CatalogURI()), quoteIdent(s.Name), quoteLiteral(s.DataPath)),
		},
		Statement{Step: StepUse, SQL: "USE " + quoteIdent(s.Name)},
	)
	return stmts
}

// quoteLiteral renders v as a single-quoted SQL string literal.
func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func quoteIdent(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func redact(msg string, secrets []string) string {
	for _, s := range secrets {
		msg = strings.ReplaceAll(msg, s, redactedValue)
	}
	return msg
}
