package models

// Requests for confluence HTTP endpoints.

type SymbolRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,symbol"`
}

type AnalyzeRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	// Cache selects the indicator-cache path; "false" computes every indicator directly.
	Cache string `query:"cache" json:"cache" default:"true" validate:"oneof=true false"`
	// Publish also writes the result to the breakdown cache.
	Publish string `query:"publish" json:"publish" default:"false" validate:"oneof=true false"`
}

type RefreshResponse struct {
	JobID  string `json:"job_id"`
	Symbol string `json:"symbol"`
}

type HistoryRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,symbol"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
	// Since drops rows older than this; RFC3339 or unix seconds/millis.
	Since string `query:"since" json:"since,omitempty" validate:"omitempty,timeparam"`
}
