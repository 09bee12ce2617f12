// Command server runs the plugin host kernel's HTTP API.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/opskernel/pluginhost/internal/config"
	"github.com/opskernel/pluginhost/internal/httpapi"
	"github.com/opskernel/pluginhost/internal/kernel"
	"github.com/opskernel/pluginhost/internal/kernel/permission"
)

func main() {
	cfg := config.Load()

	var dialog permission.AuthorizationDialog
	if cfg.AutoApprove {
		dialog = permission.AutoApprove{}
	} else {
		dialog = permission.AutoDeny{}
	}

	manager := kernel.New(cfg.AppDataDir, cfg.PluginsDir, dialog)
	server := httpapi.NewServer(manager, []byte(cfg.JWTSigningKey))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg.HTTPBindAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
