package main

import (
	"os"

	"github.com/danmuck/cdrbridge/internal/programs"
	_ "github.com/danmuck/cdrbridge/internal/transport/mem"
	_ "github.com/danmuck/cdrbridge/internal/transport/tcp"
)

func main() {
	cli := programs.EndpointCLI("server", "Answer example_interfaces/srv/AddTwoInts requests on add_two_ints.")
	os.Exit(programs.Main(cli, os.Args[1:], programs.RunServer))
}
