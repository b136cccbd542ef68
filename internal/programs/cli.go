package programs

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/cdrbridge/internal/config"
	"github.com/danmuck/cdrbridge/internal/observability"
	"github.com/danmuck/cdrbridge/internal/shutdown"
	"gopkg.in/alecthomas/kingpin.v2"
)

// CLI is the command line shared by the cdrbridge binaries: one required
// positional address, optional typed positionals, and flags for the
// config file, node id and admin listener. Positionals given on the
// command line override the config file; absent ones keep its values.
type CLI struct {
	App *kingpin.Application

	address    *string
	configPath *string
	nodeID     *string
	admin      *string
	setAddress func(*config.Config, string)
	apply      []func(*config.Config)
}

// NewCLI builds the parser for program. address names the first
// positional argument and setAddress stores it in the config.
func NewCLI(program, help, address, addressHelp string, setAddress func(*config.Config, string)) *CLI {
	app := kingpin.New(program, help)
	app.HelpFlag.Short('h')
	// Flags go before the address so negative numbers stay positional.
	app.Interspersed(false)
	c := &CLI{
		App:        app,
		address:    app.Arg(address, addressHelp).Required().String(),
		configPath: app.Flag("config", "TOML config file; command line arguments override it.").Short('c').String(),
		nodeID:     app.Flag("node-id", "Node id announced to peers.").String(),
		admin:      app.Flag("admin", "Serve /health, /metrics and /schemas on this address.").String(),
		setAddress: setAddress,
	}
	return c
}

// EndpointCLI is NewCLI for programs that connect to a router.
func EndpointCLI(program, help string) *CLI {
	return NewCLI(program, help, "endpoint",
		"Router endpoint: tcp/host:port, host:port or mem/<bus>.",
		func(cfg *config.Config, v string) { cfg.Endpoint = v })
}

// Output redirects usage and parse errors.
func (c *CLI) Output(w io.Writer) *CLI {
	c.App.UsageWriter(w)
	c.App.ErrorWriter(w)
	return c
}

func (c *CLI) Float64Arg(name, help string, set func(*config.Config, float64)) {
	var given bool
	v := c.App.Arg(name, help).Action(func(*kingpin.ParseContext) error {
		given = true
		return nil
	}).Float64()
	c.apply = append(c.apply, func(cfg *config.Config) {
		if given {
			set(cfg, *v)
		}
	})
}

func (c *CLI) Int64Arg(name, help string, set func(*config.Config, int64)) {
	var given bool
	v := c.App.Arg(name, help).Action(func(*kingpin.ParseContext) error {
		given = true
		return nil
	}).Int64()
	c.apply = append(c.apply, func(cfg *config.Config) {
		if given {
			set(cfg, *v)
		}
	})
}

// Parse reads args and resolves the config. On a command line error the
// usage text is written before the error is returned.
func (c *CLI) Parse(args []string) (config.Config, error) {
	if _, err := c.App.Parse(args); err != nil {
		c.App.Usage(args)
		return config.Config{}, err
	}
	cfg, err := config.LoadOrDefault(*c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	c.setAddress(&cfg, strings.TrimSpace(*c.address))
	for _, apply := range c.apply {
		apply(&cfg)
	}
	if *c.nodeID != "" {
		cfg.NodeID = *c.nodeID
	}
	if *c.admin != "" {
		cfg.AdminListen = *c.admin
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// Main parses the command line, runs the program until SIGINT or SIGTERM
// and returns the process exit code. Every failure exits 1.
func Main(c *CLI, args []string, run func(Env) error) int {
	cfg, err := c.Parse(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", c.App.Name, err)
		return 1
	}
	observability.InitLogger(c.App.Name)
	tok := shutdown.New()
	stop := shutdown.OnSignal(tok)
	defer stop()
	if err := run(Env{Config: cfg, Token: tok}); err != nil {
		return 1
	}
	return 0
}
