package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"FinAgent/internal/di"
	"FinAgent/internal/domain/models"
	"FinAgent/internal/usecase"
	"FinAgent/pkg/config"
	xhttp "FinAgent/pkg/http"
)

type command func(ctx context.Context, tools *di.Tooling, args []string) usecase.Envelope

var commands = map[string]command{
	"create":   createCmd,
	"train":    trainCmd,
	"predict":  predictCmd,
	"execute":  executeCmd,
	"evaluate": evaluateCmd,
	"list":     listCmd,
	"fetch":    fetchCmd,
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// splitID takes a leading positional agent id so both "train ID --source x"
// and "train --id ID --source x" work.
func splitID(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrInvalidRequest, err)
	}
	return nil
}

func normalize(ctx context.Context, req any) error {
	if err := xhttp.Normalize(ctx, req); err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrInvalidRequest, err)
	}
	return nil
}

func needID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: agent id is required", usecase.ErrInvalidRequest)
	}
	return nil
}

func isSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func createCmd(ctx context.Context, tools *di.Tooling, args []string) usecase.Envelope {
	fs := newFlagSet("create")
	var req models.CreateAgentRequest
	var risk float64
	var metadata string
	fs.StringVar(&req.Name, "name", "", "agent name")
	fs.StringVar(&req.StrategyType, "strategy", "", "dnn, lstm or momentum")
	fs.Float64Var(&risk, "risk", 0, "risk level in [0,1]")
	fs.StringVar(&req.AgentID, "id", "", "explicit agent id")
	fs.StringVar(&metadata, "metadata", "", "JSON object stored with the agent")
	if err := parse(fs, args); err != nil {
		return usecase.Failure(err)
	}
	if isSet(fs, "risk") {
		req.RiskLevel = &risk
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &req.Metadata); err != nil {
			return usecase.Failure(fmt.Errorf("%w: metadata: %v", usecase.ErrInvalidRequest, err))
		}
	}
	if err := normalize(ctx, &req); err != nil {
		return usecase.Failure(err)
	}
	return usecase.Result(tools.Agents.Create(ctx, req))
}

func trainCmd(ctx context.Context, tools *di.Tooling, args []string) usecase.Envelope {
	id, args := splitID(args)
	fs := newFlagSet("train")
	var req models.TrainAgentRequest
	fs.StringVar(&id, "id", id, "agent id")
	fs.StringVar(&req.Source, "source", "", "data source spec")
	fs.IntVar(&req.Epochs, "epochs", 0, "training epochs")
	fs.IntVar(&req.BatchSize, "batch-size", 0, "batch size")
	fs.Float64Var(&req.ValidationSplit, "validation-split", 0, "validation fraction")
	fs.Float64Var(&req.LearningRate, "learning-rate", 0, "learning rate")
	if err := parse(fs, args); err != nil {
		return usecase.Failure(err)
	}
	if err := needID(id); err != nil {
		return usecase.Failure(err)
	}
	if err := normalize(ctx, &req); err != nil {
		return usecase.Failure(err)
	}
	return usecase.Result(tools.Agents.Train(ctx, id, req))
}

func predictCmd(ctx context.Context, tools *di.Tooling, args []string) usecase.Envelope {
	id, args := splitID(args)
	fs := newFlagSet("predict")
	var req models.PredictRequest
	fs.StringVar(&id, "id", id, "agent id")
	fs.StringVar(&req.Source, "source", "", "data source spec")
	if err := parse(fs, args); err != nil {
		return usecase.Failure(err)
	}
	if err := needID(id); err != nil {
		return usecase.Failure(err)
	}
	if err := normalize(ctx, &req); err != nil {
		return usecase.Failure(err)
	}
	return usecase.Result(tools.Agents.Predict(ctx, id, req))
}

func executeCmd(ctx context.Context, tools *di.Tooling, args []string) usecase.Envelope {
	id, args := splitID(args)
	fs := newFlagSet("execute")
	var req models.ExecuteRequest
	var balance float64
	fs.StringVar(&id, "id", id, "agent id")
	fs.StringVar(&req.Source, "source", "", "data source spec")
	fs.Float64Var(&balance, "balance", 0, "cash balance")
	fs.BoolVar(&req.Position.Held, "held", false, "a position is open")
	fs.Float64Var(&req.Position.EntryPrice, "entry-price", 0, "entry price of the open position")
	fs.Float64Var(&req.Position.Quantity, "quantity", 0, "quantity of the open position")
	if err := parse(fs, args); err != nil {
		return usecase.Failure(err)
	}
	if err := needID(id); err != nil {
		return usecase.Failure(err)
	}
	if isSet(fs, "balance") {
		req.Balance = &balance
	}
	if err := normalize(ctx, &req); err != nil {
		return usecase.Failure(err)
	}
	return usecase.Result(tools.Agents.Execute(ctx, id, req))
}

func evaluateCmd(ctx context.Context, tools *di.Tooling, args []string) usecase.Envelope {
	id, args := splitID(args)
	fs := newFlagSet("evaluate")
	var req models.EvaluateRequest
	fs.StringVar(&id, "id", id, "agent id")
	fs.StringVar(&req.Source, "source", "", "data source spec")
	fs.Float64Var(&req.InitialBalance, "initial-balance", 0, "starting cash")
	fs.IntVar(&req.TimeoutMs, "timeout-ms", 0, "abort the backtest after this many milliseconds")
	if err := parse(fs, args); err != nil {
		return usecase.Failure(err)
	}
	if err := needID(id); err != nil {
		return usecase.Failure(err)
	}
	if err := normalize(ctx, &req); err != nil {
		return usecase.Failure(err)
	}
	return usecase.Result(tools.Agents.Evaluate(ctx, id, req))
}

func listCmd(ctx context.Context, tools *di.Tooling, _ []string) usecase.Envelope {
	agents, err := tools.Agents.List(ctx)
	if err != nil {
		return usecase.Failure(err)
	}
	return usecase.Success(map[string]any{"agents": agents, "count": len(agents)})
}

func fetchCmd(ctx context.Context, tools *di.Tooling, args []string) usecase.Envelope {
	fs := newFlagSet("fetch")
	var req usecase.FetchRequest
	fs.StringVar(&req.Source, "source", "", "data source spec")
	fs.StringVar(&req.Out, "out", "", "output file (.csv, .json or .parquet)")
	fs.BoolVar(&req.Archive, "archive", false, "insert into the ClickHouse bar table")
	fs.StringVar(&req.Symbol, "symbol", "", "symbol for archived bars")
	fs.StringVar(&req.Interval, "interval", "", "interval for archived bars")
	if err := parse(fs, args); err != nil {
		return usecase.Failure(err)
	}
	if err := normalize(ctx, &req); err != nil {
		return usecase.Failure(err)
	}
	return usecase.Result(tools.Fetcher.Fetch(ctx, req))
}

// liveOverrides lets "live --agent ID --symbols A,B" replace the live section.
func liveOverrides(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("live", flag.ContinueOnError)
	agent := fs.String("agent", "", "agent id")
	symbols := fs.String("symbols", "", "comma separated symbols")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *agent != "" {
		cfg.Live.AgentID = *agent
	}
	if *symbols != "" {
		cfg.Live.Symbols = nil
		for _, s := range strings.Split(*symbols, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Live.Symbols = append(cfg.Live.Symbols, s)
			}
		}
	}
	return cfg.Validate()
}
