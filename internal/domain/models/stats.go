package models

// PipelineStats summarizes what the pipeline has persisted so far.
//
// LatestTradingDay is empty when the table holds no rows.
type PipelineStats struct {
	TotalRecords     int64  `json:"total_records" example:"360"`
	UniqueSymbols    int64  `json:"unique_symbols" example:"4"`
	LatestTradingDay string `json:"latest_trading_day" example:"2024-05-01"`
}
