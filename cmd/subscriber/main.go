package main

import (
	"os"

	"github.com/danmuck/cdrbridge/internal/programs"
	_ "github.com/danmuck/cdrbridge/internal/transport/mem"
	_ "github.com/danmuck/cdrbridge/internal/transport/tcp"
)

func main() {
	cli := programs.EndpointCLI("subscriber", "Print every geometry_msgs/msg/Twist received on cmd_vel.")
	os.Exit(programs.Main(cli, os.Args[1:], programs.RunSubscriber))
}
