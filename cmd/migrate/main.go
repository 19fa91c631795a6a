// migrate applies, rolls back or reports the embedded schema migrations against DATABASE_URL.
package main

import (
	"flag"
	"fmt"
	"os"

	"opsgate/internal/config"
	"opsgate/internal/db/migrate"
	"opsgate/internal/platform/logging"
)

func main() {
	direction := flag.String("direction", "up", "up, down, or status")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	if *direction != "status" {
		if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
			logger.Error("migrate failed", "direction", *direction, "error", err)
			os.Exit(1)
		}
	}
	version, dirty, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		logger.Error("read schema version", "error", err)
		os.Exit(1)
	}
	logger.Info("schema version", "direction", *direction, "version", version, "dirty", dirty)
}
