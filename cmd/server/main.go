package main

import (
	"offerwall-engine/internal/app/server"
	"offerwall-engine/internal/config"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.Server.LogLevel)
	server.Run(cfg)
}
