// Package config defines boltd's runtime configuration and how it is
// loaded from flags, environment variables, and an optional config file
// (§6, §10). Grounded on the teacher's neo4j/config.go for the
// dense-godoc-per-field convention — every exported field here documents
// its default and its effect the same way Config.MaxConnectionPoolSize and
// friends do in the teacher — and on the Ekats-Mycelica/spore and
// vitessio-vitess example repos for wiring spf13/viper on top of
// spf13/pflag so the same flags double as env-var and file-backed config.
package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of knobs cmd/boltd exposes. Zero values are not
// safe to use directly — call Load or Defaults to get a populated value.
type Config struct {
	// ListenAddr is the TCP address the server binds, e.g. "0.0.0.0:7687"
	// (Bolt's IANA-assigned default port). Default: ":7687".
	ListenAddr string

	// TLSCertFile and TLSKeyFile, when both set, enable TLS on the
	// listener via the standard library's crypto/tls. Default: disabled.
	TLSCertFile string
	TLSKeyFile  string

	// MaxSessions caps concurrently open connections; 0 means unbounded.
	// Default: 0.
	MaxSessions int

	// IdleTimeout closes a connection that has sent no message for this
	// long. Default: 30m.
	IdleTimeout time.Duration

	// ReapInterval is how often the idle reaper scans for expired
	// sessions; it trades reap latency against scan overhead. Default: 1m.
	ReapInterval time.Duration

	// MaxMessageSize bounds one chunked message's reassembled size, per
	// §4.2's resource-exhaustion guard. Default: 4 MiB.
	MaxMessageSize int

	// DatabasePath is the sqlitegraph reference backend's storage file.
	// ":memory:"-style DSNs are accepted for ephemeral runs. Default:
	// "boltd.db".
	DatabasePath string

	// Users is a static principal→password table for the basic auth
	// scheme; empty means only the "none" scheme is accepted. Default:
	// empty.
	Users map[string]string

	// LogLevel is one of "debug", "info", "warn", "error". Default: "info".
	LogLevel string

	// LogFormat is "text" (tint, for an interactive terminal) or "json"
	// (for production log pipelines). Default: "text".
	LogFormat string

	// MetricsAddr, when non-empty, serves Prometheus metrics at
	// "<addr>/metrics". Default: "" (disabled).
	MetricsAddr string
}

// Defaults returns a Config with every field set to the documented
// default.
func Defaults() Config {
	return Config{
		ListenAddr:     ":7687",
		IdleTimeout:    30 * time.Minute,
		ReapInterval:   time.Minute,
		MaxMessageSize: 4 * 1024 * 1024,
		DatabasePath:   "boltd.db",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// RegisterFlags binds fs to v and declares every flag at its documented
// default, so cmd/boltd's root command only has to call this once and
// then Load to get a fully resolved Config back.
func RegisterFlags(fs *pflag.FlagSet, v *viper.Viper) {
	d := Defaults()
	fs.String("listen-addr", d.ListenAddr, "TCP address to listen on")
	fs.String("tls-cert-file", "", "PEM certificate file; enables TLS together with --tls-key-file")
	fs.String("tls-key-file", "", "PEM private key file")
	fs.Int("max-sessions", d.MaxSessions, "maximum concurrent sessions (0 = unbounded)")
	fs.Duration("idle-timeout", d.IdleTimeout, "close a session idle for longer than this")
	fs.Duration("reap-interval", d.ReapInterval, "how often to scan for idle sessions")
	fs.Int("max-message-size", d.MaxMessageSize, "maximum reassembled message size in bytes")
	fs.String("database-path", d.DatabasePath, "sqlitegraph reference backend storage file")
	fs.String("log-level", d.LogLevel, "debug, info, warn, or error")
	fs.String("log-format", d.LogFormat, "text or json")
	fs.String("metrics-addr", d.MetricsAddr, "address to serve /metrics on (empty disables)")
	_ = v.BindPFlags(fs)
}

// Load resolves a Config from v, which by the time this is called has
// already merged flags, environment variables (BOLTD_ prefix) and any
// config file the caller told it to read.
func Load(v *viper.Viper) Config {
	return Config{
		ListenAddr:     v.GetString("listen-addr"),
		TLSCertFile:    v.GetString("tls-cert-file"),
		TLSKeyFile:     v.GetString("tls-key-file"),
		MaxSessions:    v.GetInt("max-sessions"),
		IdleTimeout:    v.GetDuration("idle-timeout"),
		ReapInterval:   v.GetDuration("reap-interval"),
		MaxMessageSize: v.GetInt("max-message-size"),
		DatabasePath:   v.GetString("database-path"),
		Users:          v.GetStringMapString("users"),
		LogLevel:       v.GetString("log-level"),
		LogFormat:      v.GetString("log-format"),
		MetricsAddr:    v.GetString("metrics-addr"),
	}
}
