package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/gogpu/ssgi"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// setupLogging raises the log level for -v and -vv and routes the
// pipeline's logs through the command logger.
func setupLogging(ctx *cli.Context) {
	level := slog.LevelWarn
	if ctx.GlobalBool("v") {
		level = slog.LevelInfo
	}

	if ctx.GlobalBool("vv") {
		level = slog.LevelDebug
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	ssgi.SetLogger(logger)
}
