package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/cdrbridge/internal/protocol/session"
	"github.com/danmuck/cdrbridge/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverridesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, `
endpoint = "tcp/10.0.0.5:7447"
call_timeout = "750ms"
a = 7
b = -2
encapsulation = true
admin_token = " s3cret "

[router]
query_timeout = "2s"

[tls]
security_mode = "production"
enabled = true
mutual = true
cert_file = "node.crt"
key_file = "node.key"
ca_file = "ca.crt"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	want.Endpoint = "tcp/10.0.0.5:7447"
	want.CallTimeout = 750 * time.Millisecond
	want.A, want.B = 7, -2
	want.Encapsulation = true
	want.AdminToken = "s3cret"
	want.Router.QueryTimeout = 2 * time.Second
	want.Session.SecurityMode = session.SecurityModeProduction
	want.Session.TLS = session.TLSConfig{Enabled: true, Mutual: true, CertFile: "node.crt", KeyFile: "node.key", CAFile: "ca.crt"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config (-want +got):\n%s", diff)
	}
	if !cfg.Codec().Encapsulation {
		t.Fatalf("codec options lost encapsulation")
	}
	if tc := cfg.Transport(); tc.Endpoint != cfg.Endpoint || tc.Session.TLS.CAFile != "ca.crt" {
		t.Fatalf("transport config: %+v", tc)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"bad duration":  `call_timeout = "soon"`,
		"unknown key":   `endpoit = "tcp/x:1"`,
		"empty topic":   `topic = ""`,
		"bad mode":      "[tls]\nsecurity_mode = \"chaos\"",
		"zero interval": `publish_interval = "0s"`,
		"not toml":      `endpoint = `,
	}
	for name, body := range cases {
		if _, err := Load(writeFile(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	testlog.Start(t)
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("default (-want +got):\n%s", diff)
	}
}

func TestTemplatesLoadBackToDefaults(t *testing.T) {
	testlog.Start(t)
	for _, kind := range Kinds {
		body, err := Template(kind)
		if err != nil {
			t.Fatalf("%s template: %v", kind, err)
		}
		if !strings.HasPrefix(body, "# cdrbridge") {
			t.Fatalf("%s template missing header", kind)
		}
		path := writeFile(t, body)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("%s template does not load: %v\n%s", kind, err, body)
		}
		want := Default()
		if kind == "router" {
			want.NodeID = "router"
			want.AdminListen = "127.0.0.1:7448"
		}
		if diff := cmp.Diff(want, cfg); diff != "" {
			t.Fatalf("%s template (-want +got):\n%s", kind, diff)
		}
	}
	if _, err := Template("mirage"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestWriteTemplateRespectsOverwrite(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "node.toml")
	if err := WriteTemplate(path, "node", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteTemplate(path, "node", false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if err := WriteTemplate(path, "router", true); err != nil {
		t.Fatalf("forced write: %v", err)
	}
}

func TestRouterConfig(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	cfg.NodeID = "hub"
	cfg.Router.RequireIdentityBinding = true
	rc := cfg.RouterConfig()
	if rc.ListenAddr != "127.0.0.1:7447" || rc.NodeID != "hub" || !rc.RequireIdentityBinding || rc.QueryTimeout != 30*time.Second {
		t.Fatalf("router config: %+v", rc)
	}
}
