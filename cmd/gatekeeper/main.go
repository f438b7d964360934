package main

import (
	"github.com/m3rciful/gatekeeper/app"
	corecmd "github.com/m3rciful/gatekeeper/core/cmd"
)

func main() {
	corecmd.Main(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        app.LoadConfig,
		Bootstrap:         app.Bootstrap,
	})
}
