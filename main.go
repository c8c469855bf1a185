package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("lm-bench"),
		kong.Description("Landmark benchmark experiments: generate configurations, run them and extract metrics."),
		kong.UsageOnError(),
	)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cli.logLevel()}))
	slog.SetDefault(logger)

	err := ctx.Run(&app{cli: &cli, logger: logger, getenv: os.Getenv, hostname: os.Hostname})
	ctx.FatalIfErrorf(err)
}
