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
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/studiopay/remit/model"
)

var errUnparseableAmount = errors.New("amount text is not a number")

// headerLabels are the column titles some reports repeat as a row.
var headerLabels = map[string]bool{
	"category":    true,
	"description": true,
	"charge":      true,
	"charges":     true,
	"item":        true,
	"amount":      true,
}

// ReadUnpaidCharges loads and normalizes the unpaid charges of account.
// The returned map is never nil. When the report cannot be read the map is
// empty and the error says why; callers treat that as "no charge data".
func ReadUnpaidCharges(ctx context.Context, src ChargeSource, account model.AccountCandidate) (*model.UnpaidChargeMap, error) {
	unpaid := model.NewUnpaidChargeMap()

	rows, err := src.GetUnpaidCharges(ctx, account)
	if err != nil {
		return unpaid, err
	}

	for _, row := range rows {
		category := strings.Join(strings.Fields(row.Category), " ")
		if isSummaryRow(category) {
			continue
		}
		amount, err := ParseAmountText(row.AmountText)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"account":  account.ID,
				"category": category,
				"amount":   row.AmountText,
			}).Debug("skipping charge row with unreadable amount")
			continue
		}
		if !amount.IsPositive() {
			continue
		}
		unpaid.Add(category, amount)
	}

	return unpaid, nil
}

func isSummaryRow(category string) bool {
	if category == "" {
		return true
	}
	lower := strings.ToLower(strings.TrimSuffix(category, ":"))
	if headerLabels[lower] {
		return true
	}
	return strings.Contains(lower, "total") || strings.HasPrefix(lower, "summary")
}

// ParseAmountText reads report amounts such as "$1,250.00", "(45.00)" or
// "-12.50 CAD". Parentheses mark a negative amount.
func ParseAmountText(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	s = strings.NewReplacer("$", "", ",", "", " ", "", "\u00a0", "").Replace(s)
	s = strings.TrimSuffix(strings.ToUpper(s), "CAD")
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimPrefix(s, "-")
	}
	if s == "" {
		return decimal.Zero, errUnparseableAmount
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errUnparseableAmount
	}
	if negative {
		amount = amount.Neg()
	}
	return amount.Round(2), nil
}
