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
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiopay/remit/model"
)

func rawMessage(handle model.MessageHandle, lines ...string) model.RawMessage {
	return model.RawMessage{Handle: handle, Raw: []byte(strings.Join(lines, "\r\n"))}
}

func transferMessage(handle model.MessageHandle, body string) model.RawMessage {
	return rawMessage(handle,
		"From: Interac <notify@payments.interac.ca>",
		"Reply-To: Jane Rivera <Jane.Rivera@Example.com>",
		"Subject: INTERAC e-Transfer: JANE RIVERA sent you money.",
		"Date: Mon, 01 Sep 2025 09:30:00 -0400",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	)
}

func TestParseMessage_PlainTransfer(t *testing.T) {
	body := strings.Join([]string{
		"Hi Dance Studio,",
		"Sent From: Jane Rivera ",
		"Amount: $45.00 (CAD)",
		"Message: Ava Rivera tuition",
		"Reference Number: AB123",
	}, "\r\n")

	intent, err := ParseMessage(transferMessage(7, body))
	require.NoError(t, err)

	assert.Equal(t, "AB123", intent.ReferenceNumber)
	assert.Equal(t, "45.00", intent.Amount.StringFixed(2))
	assert.Equal(t, "Jane Rivera", intent.SenderDisplayName)
	assert.Equal(t, "Ava Rivera tuition", intent.FreeTextMessage)
	assert.Equal(t, "Jane.Rivera@Example.com", intent.ContactEmail)
	assert.Equal(t, model.MessageHandle(7), intent.SourceMessageID)
	assert.True(t, intent.ReceivedAt.Equal(time.Date(2025, 9, 1, 13, 30, 0, 0, time.UTC)))
}

func TestParseMessage_NotATransfer(t *testing.T) {
	msg := rawMessage(1,
		"Subject: Your monthly statement",
		"",
		"Reference Number: AB123 $45.00",
	)

	_, err := ParseMessage(msg)
	assert.ErrorIs(t, err, ErrNotTransfer)
	assert.ErrorIs(t, err, ErrParseRejected)
}

func TestParseMessage_MissingReference(t *testing.T) {
	_, err := ParseMessage(transferMessage(1, "Amount: $45.00"))
	assert.ErrorIs(t, err, ErrMissingReference)
	assert.ErrorIs(t, err, ErrParseRejected)
	assert.False(t, errors.Is(err, ErrNotTransfer))
}

func TestParseMessage_MissingOrZeroAmount(t *testing.T) {
	_, err := ParseMessage(transferMessage(1, "Reference Number: AB123"))
	assert.ErrorIs(t, err, ErrMissingAmount)

	_, err = ParseMessage(transferMessage(1, "Reference Number: AB123\r\nAmount: $0.00"))
	assert.ErrorIs(t, err, ErrMissingAmount)
}

func TestParseMessage_ThousandsSeparator(t *testing.T) {
	intent, err := ParseMessage(transferMessage(1, "Amount: $1,250.5\r\nReference Number: CA9xYz"))
	require.NoError(t, err)
	assert.Equal(t, "1250.50", intent.Amount.StringFixed(2))
	assert.Equal(t, "CA9xYz", intent.ReferenceNumber)
}

func TestParseMessage_AlternativeReferenceLabels(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"REFERENCE #: QQ1\r\n$5.00", "QQ1"},
		{"Confirmation Number: C77\r\n$5.00", "C77"},
		{"confirmation #: zz8\r\n$5.00", "zz8"},
		{"Transaction ID: T1000\r\n$5.00", "T1000"},
		{"Reference Number: FIRST\r\nTransaction ID: SECOND\r\n$5.00", "FIRST"},
	}
	for _, tt := range tests {
		intent, err := ParseMessage(transferMessage(1, tt.body))
		require.NoError(t, err, tt.body)
		assert.Equal(t, tt.want, intent.ReferenceNumber)
	}

	// the primary label is case-sensitive and has no case-insensitive fallback
	_, err := ParseMessage(transferMessage(1, "reference number: abc\r\n$5.00"))
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestParseMessage_MultipartUsesFirstPlainTextPart(t *testing.T) {
	plain := "Sent From: Mo Chen\r\nAmount: $130.00\r\nReference Number: MP42\r\n"
	msg := rawMessage(3,
		"Subject: Interac e-Transfer",
		"Reply-To: mo.chen@example.com",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Amount: $999.00</p><p>Reference Number: HTML1</p>",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: base64",
		"",
		base64.StdEncoding.EncodeToString([]byte(plain)),
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Reference Number: LATER $1.00",
		"--b1--",
		"",
	)

	intent, err := ParseMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, "MP42", intent.ReferenceNumber)
	assert.Equal(t, "130.00", intent.Amount.StringFixed(2))
	assert.Equal(t, "Mo Chen", intent.SenderDisplayName)
	assert.Equal(t, "mo.chen@example.com", intent.ContactEmail)
}

func TestParseMessage_EncodedSubjectAndDefaults(t *testing.T) {
	msg := rawMessage(9,
		"Subject: =?UTF-8?Q?Virement_Interac_e-Transfer_re=C3=A7u?=",
		"",
		"Reference Number: FR1 $20",
	)

	intent, err := ParseMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, "FR1", intent.ReferenceNumber)
	assert.Equal(t, "20.00", intent.Amount.StringFixed(2))
	assert.Equal(t, model.UnknownSender, intent.SenderDisplayName)
	assert.Empty(t, intent.ContactEmail)
	assert.Empty(t, intent.FreeTextMessage)
	assert.True(t, intent.ReceivedAt.IsZero())
}

func TestContactEmail(t *testing.T) {
	assert.Equal(t, "a@b.com", contactEmail("Someone <a@b.com>"))
	assert.Equal(t, "a@b.com", contactEmail(" a@b.com "))
	assert.Empty(t, contactEmail(""))
}

func TestProcessedSet_Admit(t *testing.T) {
	set := NewProcessedSet()

	assert.True(t, set.Admit("AB123"))
	assert.False(t, set.Admit("AB123"))
	assert.False(t, set.Admit("AB123"))
	assert.True(t, set.Admit("ab123"))
	assert.Equal(t, 2, set.Len())
}
