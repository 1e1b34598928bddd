package predictor

import (
	"fmt"
	"time"

	"FinAgent/internal/domain/models"
	domsvc "FinAgent/internal/domain/service"
)

// Options configures predictor construction.
type Options struct {
	ServiceURL string
	Timeout    time.Duration
	Retries    int
	ModelID    string
	RSIPeriod  int
}

// New builds the predictor for a strategy type.
func New(strategy string, opts Options) (domsvc.Predictor, error) {
	switch strategy {
	case models.StrategyDNN:
		return NewDense(), nil
	case models.StrategyMomentum:
		return NewMomentum(opts.RSIPeriod), nil
	case models.StrategyLSTM:
		if opts.ServiceURL == "" {
			return nil, fmt.Errorf("strategy %q needs predictor.service_url", strategy)
		}
		return NewRemote(opts.ServiceURL, opts.ModelID, opts.Timeout, WithRetries(opts.Retries)), nil
	default:
		return nil, fmt.Errorf("unknown strategy type %q", strategy)
	}
}
