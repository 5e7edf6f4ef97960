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
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/studiopay/remit"
	"github.com/studiopay/remit/model"
)

const maxLookbackDays = 31

// TriggerRun is the body of POST /runs.
type TriggerRun struct {
	LookbackDays int   `json:"lookback_days"`
	UnseenOnly   *bool `json:"unseen_only"`
}

func (t *TriggerRun) ValidateTriggerRun() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.LookbackDays, validation.Min(0), validation.Max(maxLookbackDays)),
	)
}

func (t *TriggerRun) ToRunRequest() remit.RunRequest {
	return remit.RunRequest{LookbackDays: t.LookbackDays, UnseenOnly: t.UnseenOnly}
}

// PreviewCharge is one row of a posted charge report.
type PreviewCharge struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

// PreviewAllocation is the body of POST /allocations/preview.
type PreviewAllocation struct {
	Amount  string          `json:"amount"`
	Charges []PreviewCharge `json:"charges"`
}

func positiveAmount(value interface{}) error {
	s, _ := value.(string)
	amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil {
		return errors.New("must be a decimal amount")
	}
	if !amount.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
}

func (c PreviewCharge) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Category, validation.Required),
		validation.Field(&c.Amount, validation.Required),
	)
}

func (p *PreviewAllocation) ValidatePreviewAllocation() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Amount, validation.Required, validation.By(positiveAmount)),
		validation.Field(&p.Charges),
	)
}

// Payment returns the validated amount.
func (p *PreviewAllocation) Payment() decimal.Decimal {
	return decimal.RequireFromString(strings.ReplaceAll(strings.TrimSpace(p.Amount), ",", ""))
}

func (p *PreviewAllocation) ChargeRows() []model.ChargeRow {
	rows := make([]model.ChargeRow, 0, len(p.Charges))
	for _, c := range p.Charges {
		rows = append(rows, model.ChargeRow{Category: c.Category, AmountText: c.Amount})
	}
	return rows
}

// PreviewResult is the response of POST /allocations/preview.
type PreviewResult struct {
	Unpaid     *model.UnpaidChargeMap `json:"unpaid"`
	Allocation model.Allocation       `json:"allocation"`
}
