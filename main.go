// RagEx Demo sends a query to a remote retrieval endpoint, or shows a canned
// demo response when no endpoint is configured.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"ragex-demo/internal/api"
	"ragex-demo/internal/config"
	"ragex-demo/internal/dispatch"
	"ragex-demo/internal/logger"
	"ragex-demo/internal/metrics"
	"ragex-demo/internal/models"
)

const (
	ProgramName = "RagEx"
	Version     = "v0.1.0"
)

type serveCmd struct{}

type runCmd struct {
	Endpoint string `arg:"--endpoint,-e" help:"remote endpoint URL; blank means demo"`
	Demo     bool   `arg:"--demo" help:"show the canned demo response instead of calling the endpoint"`
	Key      string `arg:"--key,-k,env:RAGEX_ACCESS_KEY" help:"access key sent as ?code= and x-functions-key"`
	Query    string `arg:"--query,-q" help:"query text"`
	TopK     int    `arg:"--top-k" default:"3" help:"number of results to request (1-10)"`
}

type args struct {
	Serve *serveCmd `arg:"subcommand:serve" help:"start the web form and JSON API"`
	Run   *runCmd   `arg:"subcommand:run" help:"submit one query and print the outcome"`
}

func (args) Version() string {
	return fmt.Sprintf("%s %s", ProgramName, Version)
}

func (args) Epilogue() string {
	return "Configuration is read from config.yaml, config.json, .env and RAGEX_* environment variables."
}

func main() {
	var args args

	p, err := arg.NewParser(arg.Config{Program: strings.ToLower(ProgramName)}, &args)
	if err != nil {
		log.Fatalf("there was an error in the definition of the Go struct: %v", err)
	}
	p.MustParse(os.Args[1:])

	if p.Subcommand() == nil {
		p.WriteUsage(os.Stdout)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	d := dispatch.New(
		dispatch.WithTimeout(cfg.DispatchTimeout()),
		dispatch.WithMaxResponseBytes(cfg.Dispatch.MaxResponseBytes),
		dispatch.WithLogger(zl.Named("dispatch")),
		dispatch.WithRecorder(m),
	)

	switch cmd := p.Subcommand().(type) {
	case *serveCmd:
		server := api.NewServer(cfg, d, m, zl.Named("api"))
		if err := server.Run(ctx); err != nil {
			zl.Error("server stopped", zap.Error(err))
			stop()
			os.Exit(1)
		}
	case *runCmd:
		if cmd.TopK < dispatch.MinTopK || cmd.TopK > dispatch.MaxTopK {
			_ = p.FailSubcommand(fmt.Sprintf("--top-k must be between %d and %d", dispatch.MinTopK, dispatch.MaxTopK), "run")
		}
		ok, err := runOnce(ctx, d, cmd, os.Stdout)
		if err != nil {
			zl.Error("failed to print outcome", zap.Error(err))
		}
		if !ok || err != nil {
			stop()
			os.Exit(1)
		}
	default:
		_ = p.FailSubcommand("unrecognized command", p.SubcommandNames()...)
	}
}

// runOnce submits the flags as one submission and writes the outcome as
// indented JSON. It reports whether the outcome counts as success.
func runOnce(ctx context.Context, submitter api.SubmitterInterface, cmd *runCmd, w io.Writer) (bool, error) {
	out := submitter.Submit(ctx, models.Submission{
		EndpointURL: cmd.Endpoint,
		DemoMode:    cmd.Demo,
		AccessKey:   cmd.Key,
		Query:       cmd.Query,
		TopK:        cmd.TopK,
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return false, err
	}
	return out.Success, nil
}
