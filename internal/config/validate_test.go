package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Store.DSN = "postgres://localhost/helpdesk"
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	cfg := validConfig()
	assert.Empty(t, Validate(&cfg))
}

func TestValidatePortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000
	issues := Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "server.port", issues[0].Path)

	cfg.Server.Port = -1
	assert.NotEmpty(t, Validate(&cfg))
}

func TestValidateBind(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Bind = "tailnet"
	issues := Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "server.bind", issues[0].Path)
}

func TestValidateTLSPaths(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS.Enabled = true
	issues := Validate(&cfg)
	assert.Len(t, issues, 2)
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "mysql"
	issues := Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "store.driver", issues[0].Path)
}

func TestValidatePostgresRequiresDSN(t *testing.T) {
	cfg := Defaults()
	cfg.Store.DSN = ""
	issues := Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "store.dsn", issues[0].Path)
}

func TestValidateSQLiteRequiresPath(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Driver = "sqlite"
	issues := Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "store.path", issues[0].Path)
}

func TestValidateMemoryNeedsNothing(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Driver = "memory"
	assert.Empty(t, Validate(&cfg))
}

func TestValidateAuthMode(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Mode = "oauth"
	issues := Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "auth.mode", issues[0].Path)

	cfg.Auth.Mode = "service"
	issues = Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "auth.serviceUrl", issues[0].Path)

	cfg.Auth.ServiceURL = "http://auth.internal/session"
	assert.Empty(t, Validate(&cfg))
}

func TestValidateLogging(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	issues := Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "logging.level", issues[0].Path)

	cfg = validConfig()
	cfg.Logging.ConsoleStyle = "compact"
	issues = Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "logging.consoleStyle", issues[0].Path)
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "server.port", Message: "out of range"}
	assert.Equal(t, "server.port: out of range", issue.String())
}
