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
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/studiopay/remit/model"
)

// TransferSubjectMarker must appear in the subject of a transfer notification.
const TransferSubjectMarker = "e-Transfer"

var (
	// referencePatterns are tried in order. The first is the label the bank
	// uses today and is matched case-sensitively.
	referencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`Reference Number: ([A-Za-z0-9]+)`),
		regexp.MustCompile(`(?i)Reference #: ([A-Za-z0-9]+)`),
		regexp.MustCompile(`(?i)Confirmation Number: ([A-Za-z0-9]+)`),
		regexp.MustCompile(`(?i)Confirmation #: ([A-Za-z0-9]+)`),
		regexp.MustCompile(`(?i)Transaction ID: ([A-Za-z0-9]+)`),
	}

	amountPattern      = regexp.MustCompile(`\$([0-9][0-9,]*(?:\.[0-9]+)?)`)
	senderPattern      = regexp.MustCompile(`Sent From: (.+)`)
	freeTextPattern    = regexp.MustCompile(`Message: (.+)`)
	bracketedAddressRe = regexp.MustCompile(`<([^>]*)>`)
)

// ParseMessage turns one raw notification into a payment intent.
// Messages that are not transfer notifications fail with ErrNotTransfer;
// notifications without a reference or amount fail with ErrMissingReference
// or ErrMissingAmount. All three wrap ErrParseRejected.
func ParseMessage(raw model.RawMessage) (model.PaymentIntent, error) {
	entity, err := message.Read(bytes.NewReader(raw.Raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return model.PaymentIntent{}, fmt.Errorf("%w: %v", ErrParseRejected, err)
	}

	header := mail.Header{Header: entity.Header}
	subject, err := header.Subject()
	if err != nil {
		subject = entity.Header.Get("Subject")
	}
	if !strings.Contains(subject, TransferSubjectMarker) {
		return model.PaymentIntent{}, ErrNotTransfer
	}

	body, err := plainTextBody(entity)
	if err != nil {
		return model.PaymentIntent{}, fmt.Errorf("%w: reading body: %v", ErrParseRejected, err)
	}

	intent := model.PaymentIntent{
		SenderDisplayName: model.UnknownSender,
		ContactEmail:      contactEmail(entity.Header.Get("Reply-To")),
		SourceMessageID:   raw.Handle,
	}

	intent.ReferenceNumber = extractReference(body)
	if intent.ReferenceNumber == "" {
		return model.PaymentIntent{}, ErrMissingReference
	}

	amount, ok := extractAmount(body)
	if !ok {
		return model.PaymentIntent{}, ErrMissingAmount
	}
	intent.Amount = amount

	if m := senderPattern.FindStringSubmatch(body); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			intent.SenderDisplayName = name
		}
	}
	if m := freeTextPattern.FindStringSubmatch(body); m != nil {
		intent.FreeTextMessage = strings.TrimSpace(m[1])
	}

	if date, err := header.Date(); err == nil {
		intent.ReceivedAt = date
	} else {
		logrus.WithField("handle", raw.Handle).Debugf("message has no usable Date header: %v", err)
	}

	return intent, nil
}

// plainTextBody returns the first text/plain part of a multipart message,
// or the whole body otherwise.
func plainTextBody(e *message.Entity) (string, error) {
	mr := e.MultipartReader()
	if mr == nil {
		b, err := io.ReadAll(e.Body)
		return string(b), err
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
			return "", err
		}

		if part.MultipartReader() != nil {
			body, err := plainTextBody(part)
			if err != nil || body != "" {
				return body, err
			}
			continue
		}

		contentType, _, _ := part.Header.ContentType()
		if contentType == "" || contentType == "text/plain" {
			b, err := io.ReadAll(part.Body)
			return string(b), err
		}
	}
}

func extractReference(body string) string {
	for _, pattern := range referencePatterns {
		if m := pattern.FindStringSubmatch(body); m != nil {
			return m[1]
		}
	}
	return ""
}

func extractAmount(body string) (decimal.Decimal, bool) {
	m := amountPattern.FindStringSubmatch(body)
	if m == nil {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}

func contactEmail(replyTo string) string {
	if m := bracketedAddressRe.FindStringSubmatch(replyTo); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(replyTo)
}
