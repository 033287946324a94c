package platform

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"playground/internal/playground"
	"playground/internal/sandbox"
	"playground/internal/sandbox/local"
	"playground/internal/syncer"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable read by LoadAppConfig.
const EnvPrefix = "PLAYGROUND"

// FlagsConfig holds all boolean or string flags for the app.
type FlagsConfig struct {
	// Headless disables the HTTP server when true.
	Headless bool `envconfig:"HEADLESS"`
	// Examples launches the embedded example projects for the index page.
	Examples bool `envconfig:"EXAMPLES"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `envconfig:"LOG_LEVEL"`
}

// SandboxConfig configures the process-wide sandbox runtime.
type SandboxConfig struct {
	Root           string        `envconfig:"SANDBOX_ROOT"`
	PublicHost     string        `envconfig:"SANDBOX_PUBLIC_HOST"`
	ProbeInterval  time.Duration `envconfig:"SANDBOX_PROBE_INTERVAL"`
	InstallCommand string        `envconfig:"SANDBOX_INSTALL_COMMAND"`
	DevCommand     string        `envconfig:"SANDBOX_DEV_COMMAND"`
	ProjectsDir    string        `envconfig:"SANDBOX_PROJECTS_DIR"`
}

// SessionConfig tunes every playground session.
type SessionConfig struct {
	Sync           syncer.Config `envconfig:"SYNC"`
	ResolveTimeout time.Duration `envconfig:"RESOLVE_TIMEOUT"`
	OutputHistory  int           `envconfig:"OUTPUT_HISTORY"`
	CookieSecret   string        `envconfig:"COOKIE_SECRET"`
}

// AppConfig contains the configuration for the app.
type AppConfig struct {
	Flags      *FlagsConfig
	NatsCfg    *EmbeddedServerConfig
	HTTPSrvCfg *HTTPServerConfig
	SandboxCfg *SandboxConfig
	SessionCfg *SessionConfig
}

// LoadAppConfig starts from defaults, loads .env when present and overlays
// PLAYGROUND_* environment variables.
func LoadAppConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "err", err)
	}
	cfg := &AppConfig{
		Flags:      defaultFlagsCfg(),
		NatsCfg:    defaultNatsCfg(),
		HTTPSrvCfg: defaultHTTPServerCfg(),
		SandboxCfg: defaultSandboxCfg(),
		SessionCfg: defaultSessionCfg(),
	}
	for _, spec := range []any{cfg.Flags, cfg.NatsCfg, cfg.HTTPSrvCfg, cfg.SandboxCfg, cfg.SessionCfg} {
		if err := envconfig.Process(EnvPrefix, spec); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	return cfg, nil
}

// LocalRuntime returns the settings of the host-process sandbox runtime.
func (c *SandboxConfig) LocalRuntime() local.Config {
	return local.Config{Root: c.Root, PublicHost: c.PublicHost, ProbeInterval: c.ProbeInterval}
}

// Playground assembles the per-session configuration.
func (c *AppConfig) Playground() playground.Config {
	pc := playground.DefaultConfig()
	pc.Sync = c.SessionCfg.Sync
	pc.ResolveTimeout = c.SessionCfg.ResolveTimeout
	pc.OutputHistory = c.SessionCfg.OutputHistory
	if fields := strings.Fields(c.SandboxCfg.InstallCommand); len(fields) > 0 {
		pc.Sandbox.InstallCommand = fields
	}
	if fields := strings.Fields(c.SandboxCfg.DevCommand); len(fields) > 0 {
		pc.Sandbox.DevCommand = fields
	}
	if c.SandboxCfg.ProjectsDir != "" {
		pc.Sandbox.ProjectsDir = c.SandboxCfg.ProjectsDir
	}
	return pc
}

// defaultFlagsCfg returns the default FlagsConfig.
func defaultFlagsCfg() *FlagsConfig {
	return &FlagsConfig{
		Headless: false,
		Examples: true,
		LogLevel: "info",
	}
}

// defaultHTTPServerCfg returns sane defaults for the HTTP server.
func defaultHTTPServerCfg() *HTTPServerConfig {
	return &HTTPServerConfig{
		Port:         8080,
		ReadTimeout:  -1,
		WriteTimeout: -1,
		IdleTimeout:  -1,
		EnableTLS:    false,
		CertFile:     "./local_certs/localhost+2.pem",
		KeyFile:      "./local_certs/localhost+2-key.pem",
	}
}

// defaultNatsCfg returns the default EmbeddedServerConfig.
func defaultNatsCfg() *EmbeddedServerConfig {
	return &EmbeddedServerConfig{
		InProcess:     false,
		EnableLogging: true,
		JetStream:     true,
		StoreDir:      "./store/js",
		ReadyTimeout:  5 * time.Second,
	}
}

func defaultSandboxCfg() *SandboxConfig {
	sc := sandbox.DefaultConfig()
	return &SandboxConfig{
		Root:           "./store/sandbox",
		PublicHost:     "localhost",
		ProbeInterval:  100 * time.Millisecond,
		InstallCommand: strings.Join(sc.InstallCommand, " "),
		DevCommand:     strings.Join(sc.DevCommand, " "),
		ProjectsDir:    sc.ProjectsDir,
	}
}

func defaultSessionCfg() *SessionConfig {
	pc := playground.DefaultConfig()
	return &SessionConfig{
		Sync:           pc.Sync,
		ResolveTimeout: pc.ResolveTimeout,
		OutputHistory:  pc.OutputHistory,
		CookieSecret:   "very-secret-key-change-me",
	}
}
