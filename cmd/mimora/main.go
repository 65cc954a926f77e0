package main

import (
	"github.com/you/mimora/internal/app"
	"github.com/you/mimora/internal/config"
	"github.com/you/mimora/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger.Fatalf("config: %v", err)
	}
	logging.Init(cfg.AppName)

	if err := app.Run(cfg); err != nil {
		logging.Logger.Fatalf("app: %v", err)
	}
}
