package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lm-bench/internal/config"
	"lm-bench/internal/db"
	"lm-bench/internal/experiment"
	"lm-bench/internal/router"
	"lm-bench/internal/service"
)

type CLI struct {
	Config  string `short:"c" default:"config/config.yaml" help:"Path to the configuration file."`
	TestRun string `name:"test-run" enum:"auto,yes,no" default:"auto" help:"Run the small test suite locally (auto, yes, no)."`
	Verbose bool   `short:"v" help:"Enable debug logging."`

	Configs ConfigsCmd `cmd:"" help:"Print the generated run configurations."`
	Run     RunCmd     `cmd:"" help:"Run the experiment locally or submit it to Slurm."`
	Parse   ParseCmd   `cmd:"" help:"Extract metrics from the logs of a finished experiment."`
	Report  ReportCmd  `cmd:"" help:"Render the report of an experiment."`
	Serve   ServeCmd   `cmd:"" help:"Serve the HTTP API."`
	Extract ExtractCmd `cmd:"" help:"Extract metrics from planner log files."`
}

func (c *CLI) logLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// app carries what every command needs; kong binds it into Run.
type app struct {
	cli      *CLI
	logger   *slog.Logger
	getenv   func(string) string
	hostname func() (string, error)
	out      io.Writer
}

func (a *app) stdout() io.Writer {
	if a.out != nil {
		return a.out
	}
	return os.Stdout
}

func (a *app) loadConfig() (*config.Config, error) {
	return config.LoadConfig(a.cli.Config)
}

// services loads the configuration and opens the database.
func (a *app) services() (*config.Config, *service.ServiceContext, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := db.InitDB(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	svc, err := service.NewServiceContext(cfg, db.DB, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, svc, nil
}

func (a *app) testRun(cfg *config.Config) (bool, error) {
	host, err := a.hostname()
	if err != nil {
		a.logger.Debug("hostname unavailable", "error", err)
	}
	return experiment.IsTestRun(a.cli.TestRun, a.getenv, host, cfg.Environment.ClusterHostSuffixes)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type ConfigsCmd struct{}

func (c *ConfigsCmd) Run(a *app) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	configs, err := experiment.Generate(cfg.Experiment.Spec())
	if err != nil {
		return err
	}
	for _, rc := range configs {
		fmt.Fprintf(a.stdout(), "%s\t%s\n", rc.Name(), rc.SearchString())
	}
	return nil
}

type RunCmd struct {
	Name      string `help:"Experiment name, defaults to the configured one."`
	SkipParse bool   `name:"skip-parse" help:"Do not parse logs after a local run."`
}

func (c *RunCmd) Run(a *app) error {
	cfg, svc, err := a.services()
	if err != nil {
		return err
	}
	testRun, err := a.testRun(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := svc.Runner.Run(ctx, service.ExperimentRunRequest{
		Name:      c.Name,
		TestRun:   testRun,
		SkipParse: c.SkipParse,
	})
	if err != nil {
		return err
	}
	return a.printJSON(result)
}

type ParseCmd struct {
	Experiment string `arg:"" help:"Experiment id or uuid."`
}

func (c *ParseCmd) Run(a *app) error {
	_, svc, err := a.services()
	if err != nil {
		return err
	}
	ctx := context.Background()
	exp, err := service.FindExperiment(ctx, svc.DB, c.Experiment)
	if err != nil {
		return err
	}
	summary, err := svc.Parse.ParseExperiment(ctx, exp.ID)
	if err != nil {
		return err
	}
	return a.printJSON(summary)
}

type ReportCmd struct {
	Experiment string `arg:"" help:"Experiment id or uuid."`
	Format     string `enum:"markdown,json" default:"markdown" help:"Output format (markdown, json)."`
}

func (c *ReportCmd) Run(a *app) error {
	_, svc, err := a.services()
	if err != nil {
		return err
	}
	report, err := svc.Reports.Report(context.Background(), c.Experiment)
	if err != nil {
		return err
	}
	if c.Format == "json" {
		return a.printJSON(report)
	}
	_, err = io.WriteString(a.stdout(), service.RenderReportMarkdown(report))
	return err
}

type ServeCmd struct {
	Port int `help:"Listen port, overrides the configured one."`
}

func (c *ServeCmd) Run(a *app) error {
	cfg, svc, err := a.services()
	if err != nil {
		return err
	}
	port := cfg.Server.Port
	if c.Port != 0 {
		port = c.Port
	}

	r := router.SetupRouter(svc)
	addr := fmt.Sprintf(":%d", port)
	a.logger.Info("server listening", "addr", addr)
	return r.Run(addr)
}

type ExtractCmd struct {
	Files []string `arg:"" type:"existingfile" help:"Planner log files."`
}

// Run parses each file independently; a conversion failure in one file is
// reported and does not stop the others.
func (c *ExtractCmd) Run(a *app) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	extractor, err := service.BuildExtractor(cfg.Metrics.Rules)
	if err != nil {
		return err
	}

	results := make(map[string]any, len(c.Files))
	failed := 0
	for _, f := range c.Files {
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		res, err := extractor.Parse(string(data))
		if err != nil {
			a.logger.Warn("log unparseable", "file", f, "error", err)
			results[f] = map[string]string{"error": err.Error()}
			failed++
			continue
		}
		results[f] = res
	}
	if err := a.printJSON(results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d logs unparseable", failed, len(c.Files))
	}
	return nil
}
