// Package config loads daemon settings from a YAML file, environment
// variables and defaults.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/spf13/viper"

    "github.com/amirimatin/go-spantree/pkg/observability/logging"
    "github.com/amirimatin/go-spantree/pkg/security/tlsconfig"
)

// EnvPrefix prefixes every environment override, e.g. SPANTREE_SERVER_ID.
const EnvPrefix = "SPANTREE"

// Config is the root configuration of one server.
type Config struct {
    Server ServerConfig   `mapstructure:"server"`
    Link   LinkConfig     `mapstructure:"link"`
    Mgmt   MgmtConfig     `mapstructure:"mgmt"`
    Log    logging.Config `mapstructure:"log"`
    // Trace exports spans to stdout.
    Trace bool `mapstructure:"trace"`
}

// ServerConfig is the identity announced to peers.
type ServerConfig struct {
    ID          string `mapstructure:"id"`
    Name        string `mapstructure:"name"`
    Description string `mapstructure:"description"`
}

// LinkConfig selects the link transport and the peers to link to at start.
type LinkConfig struct {
    Transport string   `mapstructure:"transport"` // grpc or mem
    Listen    string   `mapstructure:"listen"`
    Connect   []string `mapstructure:"connect"` // addr or name@addr
    // Discovery is static (Connect), file or dns.
    Discovery string        `mapstructure:"discovery"`
    File      string        `mapstructure:"file"`
    FileEnv   string        `mapstructure:"file_env"`
    DNS       []string      `mapstructure:"dns"`
    DNSPort   int           `mapstructure:"dns_port"`
    Refresh   time.Duration `mapstructure:"refresh"`
    Retry     time.Duration `mapstructure:"retry"`
    QueueSize int           `mapstructure:"queue_size"`
}

// MgmtConfig is the management endpoint serving status and metrics.
type MgmtConfig struct {
    Addr  string            `mapstructure:"addr"`
    Proto string            `mapstructure:"proto"` // http or grpc
    TLS   tlsconfig.Options `mapstructure:"tls"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
    return &Config{
        Server: ServerConfig{ID: "0AA", Name: "hub.spantree.local", Description: "spantree server"},
        Link: LinkConfig{
            Transport: "grpc",
            Listen:    ":7000",
            Discovery: "static",
            DNSPort:   7000,
            Refresh:   30 * time.Second,
            Retry:     2 * time.Second,
            QueueSize: 1024,
        },
        Mgmt: MgmtConfig{Addr: ":6680", Proto: "http"},
        Log: logging.Config{
            Level:   "info",
            Format:  "console",
            Outputs: []string{"stdout"},
            Rotation: logging.RotationConfig{
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
    }
}

// Load reads configuration from path, or from spantree.yaml in the usual
// places when path is empty. Environment variables override the file; "."
// and "-" in keys become "_", so log.level is SPANTREE_LOG_LEVEL.
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix(EnvPrefix)
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()
    seed(v, cfg)

    if path == "" { path = os.Getenv(EnvPrefix + "_CONFIG") }
    if path != "" {
        v.SetConfigFile(path)
    } else {
        v.SetConfigName("spantree")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil { v.AddConfigPath(filepath.Join(home, ".spantree")) }
    }
    if err := v.ReadInConfig(); err != nil {
        var notFound viper.ConfigFileNotFoundError
        if !errors.As(err, &notFound) { return nil, fmt.Errorf("read config: %w", err) }
    }

    if err := v.Unmarshal(cfg); err != nil { return nil, fmt.Errorf("decode config: %w", err) }
    if err := cfg.Validate(); err != nil { return nil, err }
    return cfg, nil
}

// seed registers every key with viper so env-only configs work.
func seed(v *viper.Viper, c *Config) {
    v.SetDefault("server.id", c.Server.ID)
    v.SetDefault("server.name", c.Server.Name)
    v.SetDefault("server.description", c.Server.Description)
    v.SetDefault("link.transport", c.Link.Transport)
    v.SetDefault("link.listen", c.Link.Listen)
    v.SetDefault("link.connect", c.Link.Connect)
    v.SetDefault("link.discovery", c.Link.Discovery)
    v.SetDefault("link.file", c.Link.File)
    v.SetDefault("link.file_env", c.Link.FileEnv)
    v.SetDefault("link.dns", c.Link.DNS)
    v.SetDefault("link.dns_port", c.Link.DNSPort)
    v.SetDefault("link.refresh", c.Link.Refresh)
    v.SetDefault("link.retry", c.Link.Retry)
    v.SetDefault("link.queue_size", c.Link.QueueSize)
    v.SetDefault("mgmt.addr", c.Mgmt.Addr)
    v.SetDefault("mgmt.proto", c.Mgmt.Proto)
    v.SetDefault("mgmt.tls.enable", c.Mgmt.TLS.Enable)
    v.SetDefault("mgmt.tls.ca", c.Mgmt.TLS.CAFile)
    v.SetDefault("mgmt.tls.cert", c.Mgmt.TLS.CertFile)
    v.SetDefault("mgmt.tls.key", c.Mgmt.TLS.KeyFile)
    v.SetDefault("mgmt.tls.server_name", c.Mgmt.TLS.ServerName)
    v.SetDefault("mgmt.tls.insecure_skip_verify", c.Mgmt.TLS.InsecureSkipVerify)
    v.SetDefault("mgmt.tls.reload", c.Mgmt.TLS.Reload)
    v.SetDefault("log.level", c.Log.Level)
    v.SetDefault("log.format", c.Log.Format)
    v.SetDefault("log.outputs", c.Log.Outputs)
    v.SetDefault("log.development", c.Log.Development)
    v.SetDefault("log.rotation.enable", c.Log.Rotation.Enable)
    v.SetDefault("log.rotation.max_size_mb", c.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", c.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", c.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", c.Log.Rotation.Compress)
    v.SetDefault("trace", c.Trace)
}

// Validate normalizes c and rejects unusable values. Server identity is
// checked again when the daemon is built.
func (c *Config) Validate() error {
    switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
    case "debug", "info", "warn", "warning", "error":
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }
    if c.Log.Format == "" { c.Log.Format = "console" }
    if len(c.Log.Outputs) == 0 { c.Log.Outputs = []string{"stdout"} }

    c.Server.ID = strings.ToUpper(strings.TrimSpace(c.Server.ID))
    if c.Server.ID == "" || strings.TrimSpace(c.Server.Name) == "" { return errors.New("server.id and server.name are required") }

    c.Link.Transport = strings.ToLower(strings.TrimSpace(c.Link.Transport))
    switch c.Link.Transport {
    case "grpc", "mem":
    default:
        return fmt.Errorf("invalid link.transport: %q", c.Link.Transport)
    }
    c.Link.Discovery = strings.ToLower(strings.TrimSpace(c.Link.Discovery))
    switch c.Link.Discovery {
    case "", "static":
        c.Link.Discovery = "static"
    case "file":
        if c.Link.File == "" && c.Link.FileEnv == "" { return errors.New("link.discovery=file needs link.file or link.file_env") }
    case "dns":
        if len(c.Link.DNS) == 0 { return errors.New("link.discovery=dns needs link.dns") }
    default:
        return fmt.Errorf("invalid link.discovery: %q", c.Link.Discovery)
    }

    c.Mgmt.Proto = strings.ToLower(strings.TrimSpace(c.Mgmt.Proto))
    switch c.Mgmt.Proto {
    case "", "http":
        c.Mgmt.Proto = "http"
    case "grpc":
        if c.Mgmt.TLS.Enable { return errors.New("mgmt.tls is only supported with mgmt.proto=http") }
    default:
        return fmt.Errorf("invalid mgmt.proto: %q", c.Mgmt.Proto)
    }
    return nil
}
