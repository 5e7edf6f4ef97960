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

// UnknownSender is the display name used when a notification carries no "Sent From" line.
const UnknownSender = "Unknown"

// MessageHandle identifies a message inside the mailbox it was fetched from.
// Only the mailbox interprets it; the engine hands it back when flagging a message.
type MessageHandle uint32

// RawMessage is one message as delivered by the mailbox, before any parsing.
type RawMessage struct {
	Handle MessageHandle
	Raw    []byte
}

// PaymentIntent is a payment event extracted from a single transfer notification.
type PaymentIntent struct {
	ReferenceNumber   string          `json:"reference_number"`
	Amount            decimal.Decimal `json:"amount"`
	SenderDisplayName string          `json:"sender_display_name"`
	ContactEmail      string          `json:"contact_email"`
	FreeTextMessage   string          `json:"free_text_message"`
	ReceivedAt        time.Time       `json:"received_at"`
	SourceMessageID   MessageHandle   `json:"source_message_id"`
}

// PaymentDate returns the date the payment should be recorded under.
// Messages without a usable Date header fall back to now.
func (p PaymentIntent) PaymentDate(now time.Time) time.Time {
	if p.ReceivedAt.IsZero() {
		return now
	}
	return p.ReceivedAt
}
