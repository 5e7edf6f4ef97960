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

package remit

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/studiopay/remit/config"
	"github.com/studiopay/remit/model"
)

// FallbackCategory receives the whole payment when no charge data exists.
const FallbackCategory = "Tuition"

// DefaultCategoryPriority is the order charges are paid down in.
var DefaultCategoryPriority = config.DefaultCategoryPriority

// settlementTolerance absorbs rounding when comparing a payment to the total owed.
var settlementTolerance = decimal.RequireFromString("0.01")

// Allocator splits payments across unpaid charge categories.
type Allocator struct {
	priority []string
}

// NewAllocator uses priority as the known-category order. An empty priority
// falls back to DefaultCategoryPriority.
func NewAllocator(priority []string) *Allocator {
	if len(priority) == 0 {
		priority = DefaultCategoryPriority
	}
	return &Allocator{priority: append([]string(nil), priority...)}
}

// Allocate splits payment using the default category priority.
func Allocate(payment decimal.Decimal, unpaid *model.UnpaidChargeMap) model.Allocation {
	return NewAllocator(nil).Allocate(payment, unpaid)
}

// Allocate maps a payment onto the unpaid charges. The entries always sum to
// payment to the cent.
//
//   - no charges: everything goes to FallbackCategory
//   - payment settles the total: every category is paid in full
//   - payment below the total: categories are paid down in priority order
//   - payment above the total: everything goes to the top category present
func (a *Allocator) Allocate(payment decimal.Decimal, unpaid *model.UnpaidChargeMap) model.Allocation {
	payment = payment.Round(2)

	if unpaid.Len() == 0 {
		return model.Allocation{{Category: FallbackCategory, Amount: payment}}
	}

	order := a.Order(unpaid)
	total := unpaid.Total()

	switch {
	case payment.Sub(total).Abs().LessThan(settlementTolerance):
		return a.settle(payment, order, unpaid)
	case payment.LessThan(total):
		return a.payDown(payment, order, unpaid)
	default:
		return model.Allocation{{Category: order[0], Amount: payment}}
	}
}

// settle pays every category in full. Any sub-cent gap between payment and
// the total is absorbed by the last category so the sum stays exact.
func (a *Allocator) settle(payment decimal.Decimal, order []string, unpaid *model.UnpaidChargeMap) model.Allocation {
	allocation := make(model.Allocation, 0, len(order))
	for _, category := range order {
		amount, _ := unpaid.Get(category)
		allocation = append(allocation, model.AllocationEntry{Category: category, Amount: amount})
	}
	if gap := payment.Sub(allocation.Total()); !gap.IsZero() {
		last := len(allocation) - 1
		allocation[last].Amount = allocation[last].Amount.Add(gap)
	}
	return allocation
}

func (a *Allocator) payDown(payment decimal.Decimal, order []string, unpaid *model.UnpaidChargeMap) model.Allocation {
	allocation := model.Allocation{}
	remaining := payment
	for _, category := range order {
		if !remaining.IsPositive() {
			break
		}
		charge, _ := unpaid.Get(category)
		if !charge.IsPositive() {
			continue
		}
		if remaining.GreaterThanOrEqual(charge) {
			allocation = append(allocation, model.AllocationEntry{Category: category, Amount: charge})
			remaining = remaining.Sub(charge)
			continue
		}
		allocation = append(allocation, model.AllocationEntry{Category: category, Amount: remaining})
		remaining = decimal.Zero
	}
	return allocation
}

// Order lists the categories of unpaid in payment priority: known categories
// first in configured order, then unknown ones as first observed.
func (a *Allocator) Order(unpaid *model.UnpaidChargeMap) []string {
	categories := unpaid.Categories()
	order := make([]string, 0, len(categories))
	used := make(map[string]bool, len(categories))

	for _, known := range a.priority {
		for _, category := range categories {
			if !used[category] && strings.EqualFold(strings.TrimSpace(category), known) {
				order = append(order, category)
				used[category] = true
			}
		}
	}
	for _, category := range categories {
		if !used[category] {
			order = append(order, category)
		}
	}
	return order
}
