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
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/studiopay/remit/model"
)

// Search strategy names, recorded on intent outcomes.
const (
	StrategyEmail   = "email"
	StrategyMessage = "message"
	StrategySender  = "sender"
)

// Match is a verified account for a payment intent.
type Match struct {
	Account  model.AccountCandidate
	Strategy string
	// Linked is set when the first verified record was a sub-record and
	// Account is the billing account it points at.
	Linked bool
}

type matchStrategy struct {
	name  string
	query func(model.PaymentIntent) string
}

var matchStrategies = []matchStrategy{
	{name: StrategyEmail, query: func(p model.PaymentIntent) string { return p.ContactEmail }},
	{name: StrategyMessage, query: func(p model.PaymentIntent) string { return p.FreeTextMessage }},
	{name: StrategySender, query: func(p model.PaymentIntent) string {
		if p.SenderDisplayName == model.UnknownSender {
			return ""
		}
		return p.SenderDisplayName
	}},
}

// Matcher resolves payment intents to verified accounts.
type Matcher struct {
	directory AccountDirectory
	timeout   time.Duration
}

func NewMatcher(directory AccountDirectory, timeout time.Duration) *Matcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Matcher{directory: directory, timeout: timeout}
}

// Match tries each search strategy in order and returns the first candidate
// whose stored emails confirm the intent's contact email. A verified
// sub-record is followed once to its linked billing account.
func (m *Matcher) Match(ctx context.Context, intent model.PaymentIntent) (*Match, error) {
	log := logrus.WithField("reference", intent.ReferenceNumber)

	for _, strategy := range matchStrategies {
		query := strings.TrimSpace(strategy.query(intent))
		if query == "" {
			continue
		}

		account, contact, ok := m.searchVerified(ctx, query, intent.ContactEmail)
		if !ok {
			log.WithField("strategy", strategy.name).Debug("no verified candidate")
			continue
		}

		log.WithFields(logrus.Fields{"strategy": strategy.name, "account": account.ID}).Info("verified account match")
		if !contact.IsSubRecord {
			return &Match{Account: account, Strategy: strategy.name}, nil
		}
		return m.followLinkedAccount(ctx, account, contact, strategy.name)
	}

	return nil, ErrNoVerifiedMatch
}

// followLinkedAccount re-runs the email search once against the linked
// billing account email of a sub-record.
func (m *Matcher) followLinkedAccount(ctx context.Context, sub model.AccountCandidate, contact model.ContactInfo, strategy string) (*Match, error) {
	linked := strings.TrimSpace(contact.LinkedAccountEmail)
	log := logrus.WithFields(logrus.Fields{"account": sub.ID, "linked_email": linked})
	if linked == "" {
		log.Warn("matched sub-record has no linked account email")
		return nil, ErrNoVerifiedMatch
	}

	account, linkedContact, ok := m.searchVerified(ctx, linked, linked)
	if !ok || linkedContact.IsSubRecord {
		log.Warn("linked billing account could not be verified")
		return nil, ErrNoVerifiedMatch
	}

	return &Match{Account: account, Strategy: strategy, Linked: true}, nil
}

// searchVerified walks the search results for query in rank order and
// returns the first candidate that verifies against target.
func (m *Matcher) searchVerified(ctx context.Context, query, target string) (model.AccountCandidate, model.ContactInfo, bool) {
	candidates, err := m.search(ctx, query)
	if err != nil {
		logrus.WithField("query", query).Warnf("account search failed: %v", err)
		return model.AccountCandidate{}, model.ContactInfo{}, false
	}

	for _, candidate := range candidates {
		contact, err := m.contacts(ctx, candidate)
		if err != nil {
			logrus.WithField("account", candidate.ID).Warnf("reading contact emails failed: %v", err)
			continue
		}
		if VerifyContact(target, contact) {
			return candidate, contact, true
		}
	}
	return model.AccountCandidate{}, model.ContactInfo{}, false
}

func (m *Matcher) search(ctx context.Context, query string) ([]model.AccountCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.directory.SearchAccounts(ctx, query)
}

func (m *Matcher) contacts(ctx context.Context, account model.AccountCandidate) (model.ContactInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.directory.GetContactEmails(ctx, account)
}

// VerifyContact accepts an account when target equals its primary email or
// appears inside its extra emails, ignoring case and surrounding space.
// An empty target never verifies.
func VerifyContact(target string, contact model.ContactInfo) bool {
	target = normalizeEmail(target)
	if target == "" {
		return false
	}
	if normalizeEmail(contact.Primary) == target {
		return true
	}
	return strings.Contains(normalizeEmail(contact.Secondary), target)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
