package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/cdrbridge/internal/protocol/session"
	"github.com/pelletier/go-toml/v2"
)

// Kinds lists the template kinds Template accepts.
var Kinds = []string{"node", "router"}

// routerTemplate is the subset of fileConfig the router reads.
type routerTemplate struct {
	NodeID      string     `toml:"node_id,omitempty"`
	AdminListen string     `toml:"admin_listen"`
	Router      routerFile `toml:"router"`
	TLS         tlsFile    `toml:"tls"`
}

// Template renders a starting config for kind from Default.
func Template(kind string) (string, error) {
	raw := toFile(Default())
	var (
		header string
		doc    any
	)
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "node":
		header, doc = nodeHeader, raw
	case "router":
		header = routerHeader
		doc = routerTemplate{NodeID: "router", AdminListen: "127.0.0.1:7448", Router: raw.Router, TLS: raw.TLS}
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
	body, err := toml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render %s template: %w", kind, err)
	}
	return header + string(body), nil
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

func toFile(cfg Config) fileConfig {
	return fileConfig{
		Endpoint:             cfg.Endpoint,
		NodeID:               cfg.NodeID,
		ConnectTimeout:       cfg.Session.ConnectTimeout.String(),
		MaxConnectAttempts:   cfg.Session.MaxConnectAttempts,
		Encapsulation:        cfg.Encapsulation,
		Topic:                cfg.Topic,
		Service:              cfg.Service,
		PublishInterval:      cfg.PublishInterval.String(),
		CallTimeout:          cfg.CallTimeout.String(),
		Linear:               cfg.Linear,
		Angular:              cfg.Angular,
		A:                    cfg.A,
		B:                    cfg.B,
		AdminListen:          cfg.AdminListen,
		AdminToken:           cfg.AdminToken,
		MaxRequestsPerSecond: cfg.MaxRequestsPerSecond,
		ErrorReplies:         cfg.ErrorReplies,
		Router: routerFile{
			Listen:                 cfg.Router.Listen,
			QueryTimeout:           cfg.Router.QueryTimeout.String(),
			RequireIdentityBinding: cfg.Router.RequireIdentityBinding,
		},
		TLS: tlsFile{
			SecurityMode:       string(session.NormalizeSecurityMode(cfg.Session.SecurityMode)),
			Enabled:            cfg.Session.TLS.Enabled,
			Mutual:             cfg.Session.TLS.Mutual,
			InsecureSkipVerify: cfg.Session.TLS.InsecureSkipVerify,
			CertFile:           cfg.Session.TLS.CertFile,
			KeyFile:            cfg.Session.TLS.KeyFile,
			CAFile:             cfg.Session.TLS.CAFile,
			ServerName:         cfg.Session.TLS.ServerName,
		},
	}
}

const nodeHeader = `# cdrbridge node config (publisher, subscriber, client, server).
# Positional command-line arguments override these values.
`

const routerHeader = `# cdrbridge router config.
`
