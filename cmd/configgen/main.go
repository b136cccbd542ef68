package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/danmuck/cdrbridge/internal/config"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	kind = kingpin.Flag("kind", "Config kind: "+strings.Join(config.Kinds, "|")+".").
		Default("node").
		Enum(config.Kinds...)
	output = kingpin.Flag("output", "Output path for the template (defaults to <kind>.toml).").
		Short('o').
		String()
	validate = kingpin.Flag("validate", "Validate an existing config file instead of writing one.").
			Bool()
	input = kingpin.Flag("input", "Config path for --validate (defaults to <kind>.toml).").
		String()
	force = kingpin.Flag("force", "Overwrite an existing config file.").
		Short('f').
		Bool()
	toStdout = kingpin.Flag("stdout", "Write the template to stdout.").
			Short('c').
			Bool()
)

func main() {
	kingpin.Parse()
	log.SetFlags(0)

	if *validate {
		path := *input
		if path == "" {
			path = *kind + ".toml"
		}
		if _, err := config.Load(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	if *toStdout {
		body, err := config.Template(*kind)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Fprint(os.Stdout, body)
		return
	}

	target := *output
	if target == "" {
		target = *kind + ".toml"
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
