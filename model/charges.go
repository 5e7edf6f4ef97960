/*
Copyright 2025 Remit Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ChargeRow is one raw row of an account's unpaid-charges report.
type ChargeRow struct {
	Category   string `json:"category"`
	AmountText string `json:"amount"`
}

// UnpaidChargeMap maps a charge category to its outstanding amount.
// Categories keep the order in which they were first added.
type UnpaidChargeMap struct {
	order   []string
	amounts map[string]decimal.Decimal
}

// NewUnpaidChargeMap returns an empty map.
func NewUnpaidChargeMap() *UnpaidChargeMap {
	return &UnpaidChargeMap{amounts: make(map[string]decimal.Decimal)}
}

// Add accumulates amount under category, rounded to cents.
// Repeated categories are summed.
func (m *UnpaidChargeMap) Add(category string, amount decimal.Decimal) {
	if m.amounts == nil {
		m.amounts = make(map[string]decimal.Decimal)
	}
	amount = amount.Round(2)
	if current, ok := m.amounts[category]; ok {
		m.amounts[category] = current.Add(amount)
		return
	}
	m.order = append(m.order, category)
	m.amounts[category] = amount
}

// Get returns the outstanding amount for category.
func (m *UnpaidChargeMap) Get(category string) (decimal.Decimal, bool) {
	if m == nil {
		return decimal.Zero, false
	}
	amount, ok := m.amounts[category]
	return amount, ok
}

// Categories returns the categories in first-observed order.
func (m *UnpaidChargeMap) Categories() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of categories.
func (m *UnpaidChargeMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Total sums every outstanding amount.
func (m *UnpaidChargeMap) Total() decimal.Decimal {
	total := decimal.Zero
	if m == nil {
		return total
	}
	for _, category := range m.order {
		total = total.Add(m.amounts[category])
	}
	return total
}

// MarshalJSON encodes the map as an ordered list of rows.
func (m *UnpaidChargeMap) MarshalJSON() ([]byte, error) {
	entries := make([]AllocationEntry, 0, m.Len())
	for _, category := range m.Categories() {
		entries = append(entries, AllocationEntry{Category: category, Amount: m.amounts[category]})
	}
	return json.Marshal(entries)
}

// AllocationEntry is the share of a payment applied to one category.
type AllocationEntry struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// Allocation is the ordered split of one payment across categories.
type Allocation []AllocationEntry

// Total sums the allocated amounts.
func (a Allocation) Total() decimal.Decimal {
	total := decimal.Zero
	for _, entry := range a {
		total = total.Add(entry.Amount)
	}
	return total
}
