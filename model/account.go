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
	"time"

	"github.com/shopspring/decimal"
)

// AccountCandidate is one entry of a directory search result.
type AccountCandidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ContactInfo holds the stored contact details of an account.
// Secondary is the free-form "extra emails" field exactly as stored.
// IsSubRecord marks records that have no charge ledger of their own; for those
// LinkedAccountEmail points at the billing account.
type ContactInfo struct {
	Primary            string `json:"primary"`
	Secondary          string `json:"secondary"`
	LinkedAccountEmail string `json:"linked_account_email"`
	IsSubRecord        bool   `json:"is_sub_record"`
}

// PaymentRequest is what the payment applier needs to post one payment.
type PaymentRequest struct {
	Account    AccountCandidate `json:"account"`
	Amount     decimal.Decimal  `json:"amount"`
	Allocation Allocation       `json:"allocation"`
	Reference  string           `json:"reference"`
	Date       time.Time        `json:"date"`
}
