package main

import (
	"net/http"
	"os"

	"booking-api/app"
	"booking-api/internal/observability"
)

func main() {
	logger := observability.NewLogger()

	runtime, err := app.Build(app.Options{LoadDotEnv: true, RunMigrations: true})
	if err != nil {
		logger.Error("bootstrap_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer runtime.Close()

	addr := runtime.Config.Addr()
	logger.Info("server_start", map[string]any{"addr": addr})
	if err := http.ListenAndServe(addr, runtime.Handler); err != nil {
		logger.Error("server_failed", map[string]any{"error": err.Error()})
		_ = runtime.Close()
		os.Exit(1)
	}
}
