package models

import "time"

// Scenario is one row of the "Scenarios Summary" sheet. Empty numeric
// cells are NaN.
type Scenario struct {
	CreatedDate time.Time `json:"created_date"`
	Revenue     Measure   `json:"revenue"`
	Cost        Measure   `json:"cost"`
	InvCost     Measure   `json:"inv_cost"`
	Profit      Measure   `json:"profit"`
	PrecProfit  Measure   `json:"prec_profit"`
	// Extra holds the remaining summary columns keyed by header.
	Extra map[string]string `json:"extra,omitempty"`
}

// Table is an untyped sheet: ordered headers and their string rows.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Len returns the number of data rows.
func (t Table) Len() int {
	return len(t.Rows)
}
