package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"

	"FinAgent/internal/di"
	"FinAgent/internal/usecase"
	"FinAgent/pkg/config"
	"FinAgent/pkg/server"

	"github.com/joho/godotenv"
)

const usage = `usage: app [-config path] <command> [flags]

agent commands (print a JSON result envelope):
  create    --name NAME [--strategy dnn|lstm|momentum] [--risk 0..1] [--id ID] [--metadata JSON]
  train     ID --source SOURCE [--epochs N] [--batch-size N] [--validation-split F] [--learning-rate F]
  predict   ID --source SOURCE
  execute   ID --source SOURCE [--balance F] [--held --entry-price F --quantity F]
  evaluate  ID --source SOURCE [--initial-balance F] [--timeout-ms N]
  list
  fetch     --source SOURCE [--out PATH] [--archive --symbol SYM --interval 1h]

services:
  serve     HTTP API
  worker    training queue consumer
  live      execute one agent on live bars [--agent ID] [--symbols A,B]
`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "serve":
		runApp(ctx, cfg, di.InitializeServeApp)
	case "worker":
		runApp(ctx, cfg, di.InitializeWorkerApp)
	case "live":
		if err := liveOverrides(cfg, rest); err != nil {
			log.Fatalf("live: %v", err)
		}
		runApp(ctx, cfg, di.InitializeLiveApp)
	default:
		run, ok := commands[cmd]
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
			flag.Usage()
			os.Exit(2)
		}
		tools, cleanup, err := di.InitializeTooling(cfg)
		if err != nil {
			log.Fatalf("app initialization failed: %v", err)
		}
		env := run(ctx, tools, rest)
		cleanup()
		if err := writeEnvelope(os.Stdout, env); err != nil {
			log.Fatalf("write result: %v", err)
		}
	}
}

func runApp(ctx context.Context, cfg *config.Config, initialize func(*config.Config) (*server.App, func(), error)) {
	app, cleanup, err := initialize(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}
	err = app.Run(ctx)
	cleanup()
	if err != nil {
		log.Printf("%s error: %v", app.Name(), err)
		os.Exit(1)
	}
}

func writeEnvelope(w io.Writer, env usecase.Envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}
