package main

import (
	"os"

	"github.com/danmuck/cdrbridge/internal/config"
	"github.com/danmuck/cdrbridge/internal/programs"
)

func main() {
	cli := programs.NewCLI("router", "Route samples and queries between cdrbridge nodes.",
		"listen", "Address to accept nodes on, e.g. 0.0.0.0:7447.",
		func(cfg *config.Config, v string) { cfg.Router.Listen = v })
	os.Exit(programs.Main(cli, os.Args[1:], programs.RunRouter))
}
