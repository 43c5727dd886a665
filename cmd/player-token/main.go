package main

import (
	"flag"
	"os"

	"github.com/louisbranch/matchwarden/internal/platform/config"
	"github.com/louisbranch/matchwarden/internal/tools/playertoken"
)

func main() {
	cfg, err := playertoken.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := playertoken.Run(cfg, os.Stdout, nil, nil); err != nil {
		config.Exitf("player token: %v", err)
	}
}
