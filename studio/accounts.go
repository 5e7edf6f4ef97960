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

package studio

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/studiopay/remit/model"
)

// SearchAccounts runs the back office account search. Results come from the
// quick-search list, or the accounts table when the list is absent.
func (c *Client) SearchAccounts(ctx context.Context, query string) ([]model.AccountCandidate, error) {
	doc, _, err := c.get(ctx, adminPath+"?"+url.Values{"search": {query}}.Encode())
	if err != nil {
		return nil, err
	}

	links := doc.Find(".searchResultItem a")
	if links.Length() == 0 {
		links = doc.Find("#accountsTable tr a")
	}

	candidates := []model.AccountCandidate{}
	seen := make(map[string]bool)
	links.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		candidate := c.candidateFromLink(href, collapse(a.Text()))
		if candidate.ID == "" || seen[candidate.ID] {
			return
		}
		seen[candidate.ID] = true
		candidates = append(candidates, candidate)
	})
	return candidates, nil
}

func (c *Client) candidateFromLink(href, name string) model.AccountCandidate {
	link, err := url.Parse(href)
	if err != nil {
		return model.AccountCandidate{}
	}
	abs := c.baseURL.ResolveReference(link)
	return model.AccountCandidate{
		ID:   abs.Query().Get("id"),
		Name: name,
		URL:  abs.String(),
	}
}

// GetContactEmails reads the contact fields of the account page. Records
// without a ledger tab are sub-records of a billing account.
func (c *Client) GetContactEmails(ctx context.Context, account model.AccountCandidate) (model.ContactInfo, error) {
	doc, _, err := c.get(ctx, c.accountRef(account))
	if err != nil {
		return model.ContactInfo{}, err
	}
	page := doc.Selection
	return model.ContactInfo{
		Primary:            fieldValue(page, "email"),
		Secondary:          fieldValue(page, "extra_emails"),
		LinkedAccountEmail: fieldValue(page, "account_email"),
		IsSubRecord:        doc.Find("#tab-ledger").Length() == 0,
	}, nil
}

// GetUnpaidCharges returns the rows of the account's unpaid-charges report:
// the first cell is the category, the last cell the amount owed.
func (c *Client) GetUnpaidCharges(ctx context.Context, account model.AccountCandidate) ([]model.ChargeRow, error) {
	doc, _, err := c.get(ctx, chargesPath+"?"+url.Values{"account_id": {account.ID}}.Encode())
	if err != nil {
		return nil, err
	}
	table := doc.Find("#UnpaidCharges")
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: unpaid charges table for account %s", ErrNotFound, account.ID)
	}

	rows := []model.ChargeRow{}
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 2 {
			return
		}
		rows = append(rows, model.ChargeRow{
			Category:   collapse(cells.First().Text()),
			AmountText: strings.TrimSpace(cells.Last().Text()),
		})
	})
	return rows, nil
}

// GetCurrentBalance returns the balance text shown on the account ledger.
func (c *Client) GetCurrentBalance(ctx context.Context, account model.AccountCandidate) (string, error) {
	doc, _, err := c.get(ctx, ledgerPath+"?"+url.Values{"id": {account.ID}}.Encode())
	if err != nil {
		return "", err
	}
	balance := strings.TrimSpace(doc.Find("#current-balance").First().Text())
	if balance == "" {
		return "", fmt.Errorf("%w: current balance for account %s", ErrNotFound, account.ID)
	}
	return balance, nil
}

func (c *Client) accountRef(account model.AccountCandidate) string {
	if account.URL != "" {
		return account.URL
	}
	return accountPath + "?" + url.Values{"id": {account.ID}}.Encode()
}
