package main

import (
	"flag"
	"fmt"
	"os"

	"RiskGate/internal/di"
	"RiskGate/pkg/config"
	"RiskGate/pkg/server"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config; environment variables and .env override it")
	version := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *version {
		fmt.Println(server.Version)
		return
	}
	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "riskgate:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return app.Run()
}
