package config

import (
	"flag"
	"fmt"
)

const HelpMessage = `
dispatch-core

Usage:
  dispatch -config-path=config.yaml

Configuration is read from the yaml file and may be overridden with
environment variables (SERVER_PORT, DATABASE_HOST, REDIS_HOST,
RABBITMQ_HOST, AUTH_JWT_SECRET, ...).
`

func PrintHelp() {
	if HelpMessage != "" {
		fmt.Printf("%s", HelpMessage)
	} else {
		flag.Usage()
	}
}
