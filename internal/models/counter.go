package models

import (
	"github.com/uptrace/bun"
)

// CounterName is the fixed key of the single ticket counter row.
const CounterName = "ticket_number"

// Counter holds the next ticket number to hand out. There is exactly one row,
// keyed by CounterName. Only the issuer and the reconciler touch it.
type Counter struct {
	bun.BaseModel `bun:"table:counters"`

	Name  string `bun:"name,pk"`
	Value int64  `bun:"value"`
}
