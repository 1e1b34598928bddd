package models

// Requests for the agents HTTP endpoints and the CLI commands.

type CreateAgentRequest struct {
	Name         string         `json:"name" validate:"required,max=128"`
	StrategyType string         `json:"strategy_type" default:"dnn" validate:"oneof=lstm dnn momentum"`
	RiskLevel    *float64       `json:"risk_level" validate:"omitempty,gte=0,lte=1"`
	AgentID      string         `json:"agent_id" validate:"omitempty,max=64"`
	Metadata     map[string]any `json:"metadata"`
}

type TrainAgentRequest struct {
	Source          string  `json:"source" validate:"required"`
	Epochs          int     `json:"epochs" default:"50" validate:"gte=1,lte=10000"`
	BatchSize       int     `json:"batch_size" default:"32" validate:"gte=1,lte=4096"`
	ValidationSplit float64 `json:"validation_split" default:"0.2" validate:"gt=0,lt=1"`
	LearningRate    float64 `json:"learning_rate" default:"0.05" validate:"gt=0,lte=10"`
	Async           bool    `json:"async"`
}

type PredictRequest struct {
	Source string `json:"source" validate:"required_without=Bars"`
	Bars   []Bar  `json:"bars" validate:"required_without=Source"`
}

type ExecuteRequest struct {
	Source   string   `json:"source" validate:"required_without=Bars"`
	Bars     []Bar    `json:"bars" validate:"required_without=Source"`
	Balance  *float64 `json:"balance" validate:"omitempty,gte=0"`
	Position Position `json:"position"`
}

type EvaluateRequest struct {
	Source         string  `json:"source" validate:"required_without=Bars"`
	Bars           []Bar   `json:"bars" validate:"required_without=Source"`
	InitialBalance float64 `json:"initial_balance" default:"10000" validate:"gt=0"`
	TimeoutMs      int     `json:"timeout_ms" validate:"gte=0"`
}

// TrainJobPayload is queued by asynchronous training requests.
type TrainJobPayload struct {
	AgentID string            `json:"agent_id"`
	Request TrainAgentRequest `json:"request"`
}
