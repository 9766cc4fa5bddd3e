package model

import (
	"time"
)

// ReconciliationStats aggregates item outcomes across reconciliation runs
type ReconciliationStats struct {
	Records        int64            `json:"records"`
	RecordStatuses map[string]int64 `json:"recordStatuses"`
	Items          int64            `json:"items"`
	Matched        int64            `json:"matched"`
	LowConfidence  int64            `json:"lowConfidence"`
	AmountMismatch int64            `json:"amountMismatch"`
	MissingInBank  int64            `json:"missingInBank"`
	MissingInERP   int64            `json:"missingInErp"`
	Duplicate      int64            `json:"duplicate"`
	Resolved       int64            `json:"resolved"`
	Trend          []PeriodStats    `json:"trend,omitempty"`
	From           *time.Time       `json:"from,omitempty"`
	To             *time.Time       `json:"to,omitempty"`
}

// StatusCount is one grouped row of a status aggregation
type StatusCount struct {
	Status string
	Count  int64
}

// PeriodStatusCount is one grouped row of a time-bucketed status aggregation
type PeriodStatusCount struct {
	Period string
	Status string
	Count  int64
}

// PeriodStats is the item breakdown of one time bucket
type PeriodStats struct {
	Period string           `json:"period"`
	Items  int64            `json:"items"`
	Counts map[string]int64 `json:"counts"`
}
