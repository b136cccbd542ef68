package main

import (
	"os"

	"github.com/danmuck/cdrbridge/internal/config"
	"github.com/danmuck/cdrbridge/internal/programs"
	_ "github.com/danmuck/cdrbridge/internal/transport/mem"
	_ "github.com/danmuck/cdrbridge/internal/transport/tcp"
)

func main() {
	cli := programs.EndpointCLI("client", "Call example_interfaces/srv/AddTwoInts on add_two_ints once.")
	cli.Int64Arg("a", "First addend (default 3).", func(cfg *config.Config, v int64) { cfg.A = v })
	cli.Int64Arg("b", "Second addend (default 5).", func(cfg *config.Config, v int64) { cfg.B = v })
	os.Exit(programs.Main(cli, os.Args[1:], func(env programs.Env) error {
		_, err := programs.RunClient(env)
		return err
	}))
}
