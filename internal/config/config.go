package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/cdrbridge/internal/protocol/cdr"
	"github.com/danmuck/cdrbridge/internal/protocol/schema"
	"github.com/danmuck/cdrbridge/internal/protocol/session"
	"github.com/danmuck/cdrbridge/internal/router"
	"github.com/danmuck/cdrbridge/internal/transport"
)

// Config is the resolved setup shared by every program.
type Config struct {
	Endpoint             string
	NodeID               string
	Encapsulation        bool
	Topic                string
	Service              string
	PublishInterval      time.Duration
	CallTimeout          time.Duration
	Linear               float64
	Angular              float64
	A                    int64
	B                    int64
	AdminListen          string
	AdminToken           string
	MaxRequestsPerSecond float64
	ErrorReplies         bool
	Router               RouterConfig
	Session              session.Config
}

type RouterConfig struct {
	Listen                 string
	QueryTimeout           time.Duration
	RequireIdentityBinding bool
}

func Default() Config {
	return Config{
		Endpoint:        "tcp/127.0.0.1:7447",
		Topic:           schema.TopicCmdVel,
		Service:         schema.ServiceAddTwoInts,
		PublishInterval: time.Second,
		CallTimeout:     5 * time.Second,
		Linear:          0.5,
		Angular:         0.2,
		A:               3,
		B:               5,
		Router: RouterConfig{
			Listen:       "127.0.0.1:7447",
			QueryTimeout: 30 * time.Second,
		},
		Session: session.DefaultConfig(),
	}
}

// fileConfig is the on-disk shape. Durations are strings such as "250ms".
type fileConfig struct {
	Endpoint             string     `toml:"endpoint"`
	NodeID               string     `toml:"node_id,omitempty"`
	ConnectTimeout       string     `toml:"connect_timeout"`
	MaxConnectAttempts   int        `toml:"max_connect_attempts"`
	Encapsulation        bool       `toml:"encapsulation"`
	Topic                string     `toml:"topic"`
	Service              string     `toml:"service"`
	PublishInterval      string     `toml:"publish_interval"`
	CallTimeout          string     `toml:"call_timeout"`
	Linear               float64    `toml:"linear"`
	Angular              float64    `toml:"angular"`
	A                    int64      `toml:"a"`
	B                    int64      `toml:"b"`
	AdminListen          string     `toml:"admin_listen"`
	AdminToken           string     `toml:"admin_token,omitempty"`
	MaxRequestsPerSecond float64    `toml:"max_requests_per_second"`
	ErrorReplies         bool       `toml:"error_replies"`
	Router               routerFile `toml:"router"`
	TLS                  tlsFile    `toml:"tls"`
}

type routerFile struct {
	Listen                 string `toml:"listen"`
	QueryTimeout           string `toml:"query_timeout"`
	RequireIdentityBinding bool   `toml:"require_identity_binding"`
}

type tlsFile struct {
	SecurityMode       string `toml:"security_mode"`
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
}

// Load reads path over Default. Only keys present in the file override.
func Load(path string) (Config, error) {
	cfg := Default()
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}

	str := func(key string, dst *string, v string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(dst *time.Duration, v string, keys ...string) error {
		if !meta.IsDefined(keys...) {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", strings.Join(keys, "."), err)
		}
		*dst = d
		return nil
	}

	str("endpoint", &cfg.Endpoint, raw.Endpoint)
	str("node_id", &cfg.NodeID, raw.NodeID)
	str("topic", &cfg.Topic, raw.Topic)
	str("service", &cfg.Service, raw.Service)
	str("admin_listen", &cfg.AdminListen, raw.AdminListen)
	str("admin_token", &cfg.AdminToken, raw.AdminToken)
	for _, d := range []struct {
		dst  *time.Duration
		v    string
		keys []string
	}{
		{&cfg.Session.ConnectTimeout, raw.ConnectTimeout, []string{"connect_timeout"}},
		{&cfg.PublishInterval, raw.PublishInterval, []string{"publish_interval"}},
		{&cfg.CallTimeout, raw.CallTimeout, []string{"call_timeout"}},
		{&cfg.Router.QueryTimeout, raw.Router.QueryTimeout, []string{"router", "query_timeout"}},
	} {
		if err := dur(d.dst, d.v, d.keys...); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.Session.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("encapsulation") {
		cfg.Encapsulation = raw.Encapsulation
	}
	if meta.IsDefined("linear") {
		cfg.Linear = raw.Linear
	}
	if meta.IsDefined("angular") {
		cfg.Angular = raw.Angular
	}
	if meta.IsDefined("a") {
		cfg.A = raw.A
	}
	if meta.IsDefined("b") {
		cfg.B = raw.B
	}
	if meta.IsDefined("max_requests_per_second") {
		cfg.MaxRequestsPerSecond = raw.MaxRequestsPerSecond
	}
	if meta.IsDefined("error_replies") {
		cfg.ErrorReplies = raw.ErrorReplies
	}
	if meta.IsDefined("router", "listen") {
		cfg.Router.Listen = strings.TrimSpace(raw.Router.Listen)
	}
	if meta.IsDefined("router", "require_identity_binding") {
		cfg.Router.RequireIdentityBinding = raw.Router.RequireIdentityBinding
	}
	if meta.IsDefined("tls", "security_mode") {
		cfg.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.TLS.SecurityMode))
	}
	if meta.IsDefined("tls") {
		cfg.Session.TLS = session.TLSConfig{
			Enabled:            raw.TLS.Enabled,
			Mutual:             raw.TLS.Mutual,
			InsecureSkipVerify: raw.TLS.InsecureSkipVerify,
			CertFile:           strings.TrimSpace(raw.TLS.CertFile),
			KeyFile:            strings.TrimSpace(raw.TLS.KeyFile),
			CAFile:             strings.TrimSpace(raw.TLS.CAFile),
			ServerName:         strings.TrimSpace(raw.TLS.ServerName),
		}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return Load(path)
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return fmt.Errorf("endpoint is required")
	}
	if err := transport.ValidateKey(cfg.Topic); err != nil {
		return fmt.Errorf("topic: %w", err)
	}
	if err := transport.ValidateKey(cfg.Service); err != nil {
		return fmt.Errorf("service: %w", err)
	}
	if cfg.PublishInterval <= 0 {
		return fmt.Errorf("publish_interval must be positive")
	}
	if cfg.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive")
	}
	if cfg.MaxRequestsPerSecond < 0 {
		return fmt.Errorf("max_requests_per_second must not be negative")
	}
	mode := session.NormalizeSecurityMode(cfg.Session.SecurityMode)
	if mode != session.SecurityModeDevelopment && mode != session.SecurityModeProduction {
		return fmt.Errorf("%w: %q", session.ErrInvalidSecurityMode, cfg.Session.SecurityMode)
	}
	return nil
}

// Transport returns the session settings for connecting to Endpoint.
func (c Config) Transport() transport.Config {
	return transport.Config{Endpoint: c.Endpoint, NodeID: c.NodeID, Session: c.Session}
}

func (c Config) Codec() cdr.Options {
	return cdr.Options{Encapsulation: c.Encapsulation}
}

func (c Config) RouterConfig() router.Config {
	return router.Config{
		ListenAddr:             c.Router.Listen,
		NodeID:                 c.NodeID,
		QueryTimeout:           c.Router.QueryTimeout,
		RequireIdentityBinding: c.Router.RequireIdentityBinding,
		Session:                c.Session,
	}
}
