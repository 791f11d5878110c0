package main

import (
	"context"
	"log/slog"

	"os"
	"os/signal"
	"syscall"
)

func main() {
	c := NewConfig()

	if err := c.LoadDotEnv(os.Getwd); err != nil {
		slog.Error("can't read .env file", "error", err.Error())
		os.Exit(1)
	}
	c.LoadEnv(os.Getenv)

	args, err := c.ParseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if err := c.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err.Error())
		os.Exit(2)
	}

	// Initialize context that cancelled on SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	app, err := NewApp(ctx, c)
	if err != nil {
		slog.Error("can't initialize app, sorry", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx, args); err != nil {
		slog.Error("command failed", "error", err.Error())
		os.Exit(1)
	}
}
