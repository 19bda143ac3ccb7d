// Package ledger records order fills placed by jobs (CRYPTO_ORDER and
// friends) to durable storage, independent of the task snapshot. It is an
// optional enrichment: a deployment with no ledger configured simply skips
// recording without affecting task execution.
package ledger

import (
	"context"
	"time"
)

// Fill is one completed (or simulated) order execution.
type Fill struct {
	ID        string    `json:"id"`
	TaskID    uint32    `json:"task_id"`
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Type      string    `json:"type"`
	Amount    float64   `json:"amount"`
	Price     float64   `json:"price"`
	Simulated bool      `json:"simulated"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger persists fills and lists recent history.
type Ledger interface {
	RecordFill(ctx context.Context, f Fill) error
	ListFills(ctx context.Context, limit int) ([]Fill, error)
	Close() error
}
