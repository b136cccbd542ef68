package main

import (
	"os"

	"github.com/danmuck/cdrbridge/internal/config"
	"github.com/danmuck/cdrbridge/internal/programs"
	_ "github.com/danmuck/cdrbridge/internal/transport/mem"
	_ "github.com/danmuck/cdrbridge/internal/transport/tcp"
)

func main() {
	cli := programs.EndpointCLI("publisher", "Publish geometry_msgs/msg/Twist on cmd_vel once per interval.")
	cli.Float64Arg("linear", "linear.x in m/s (default 0.5).", func(cfg *config.Config, v float64) { cfg.Linear = v })
	cli.Float64Arg("angular", "angular.z in rad/s (default 0.2).", func(cfg *config.Config, v float64) { cfg.Angular = v })
	os.Exit(programs.Main(cli, os.Args[1:], programs.RunPublisher))
}
