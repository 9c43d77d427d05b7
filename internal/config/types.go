package config

// Config is the root configuration for the helpdesk backend.
type Config struct {
	Server  ServerConfig  `yaml:"server,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	AI      AIConfig      `yaml:"ai,omitempty"`
	Auth    AuthConfig    `yaml:"auth,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP/WebSocket server.
type ServerConfig struct {
	Port           int       `yaml:"port,omitempty"`
	Bind           string    `yaml:"bind,omitempty"` // "loopback" | "lan" | "auto" | "custom"
	CustomBindHost string    `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string  `yaml:"allowedOrigins,omitempty"`
	TLS            TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig configures TLS for the server.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// StoreConfig selects and configures the conversation store backend.
type StoreConfig struct {
	Driver   string `yaml:"driver,omitempty"` // "postgres" | "sqlite" | "memory"
	DSN      string `yaml:"dsn,omitempty"`    // postgres connection string
	Path     string `yaml:"path,omitempty"`   // sqlite database file
	MaxConns int32  `yaml:"maxConns,omitempty"`
	MinConns int32  `yaml:"minConns,omitempty"`
}

// AIConfig configures the AI receptionist.
type AIConfig struct {
	APIKey       string   `yaml:"apiKey,omitempty"` // supports ${ENV_VAR} references
	Model        string   `yaml:"model,omitempty"`
	MaxTokens    int      `yaml:"maxTokens,omitempty"`
	Temperature  *float64 `yaml:"temperature,omitempty"`
	SystemPrompt string   `yaml:"systemPrompt,omitempty"`
}

// AuthConfig configures staff authentication for the dashboard API.
// Credential verification itself is delegated: "static" checks bearer
// tokens against the configured map, "service" asks an external auth
// service to resolve the session.
type AuthConfig struct {
	Mode       string            `yaml:"mode,omitempty"` // "static" | "service"
	Tokens     map[string]string `yaml:"tokens,omitempty"` // bearer token → staff user id
	ServiceURL string            `yaml:"serviceUrl,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}
