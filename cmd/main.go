package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"homesvc.app/client/internal/interfaces/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container := &cli.CLIContainer{
		EnvFiles: []string{".env"},
	}
	if dir, err := os.UserConfigDir(); err == nil {
		container.EnvFiles = append(container.EnvFiles, dir+"/homesvc/.env")
	}

	cli.Execute(ctx, container)
}
