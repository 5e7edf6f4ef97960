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
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/studiopay/remit/model"
)

type option struct {
	value string
	text  string
}

// ApplyPayment fills the cash/check payment form of the account with one
// split line per allocation entry and submits it.
func (c *Client) ApplyPayment(ctx context.Context, req model.PaymentRequest) error {
	if len(req.Allocation) == 0 {
		return errors.New("payment has no allocation")
	}

	doc, landed, err := c.get(ctx, paymentPath+"?"+url.Values{"account_id": {req.Account.ID}, "type": {"cash"}}.Encode())
	if err != nil {
		return err
	}
	form := paymentForm(doc)
	if form.Length() == 0 {
		return fmt.Errorf("%w: payment form for account %s", ErrNotFound, req.Account.ID)
	}

	values := url.Values{}
	form.Find(`input[type="hidden"]`).Each(func(_ int, input *goquery.Selection) {
		if name, ok := input.Attr("name"); ok {
			values.Set(name, input.AttrOr("value", ""))
		}
	})
	values.Set("amount", req.Amount.StringFixed(2))
	values.Set("notes", req.Reference)

	if err := setDate(form, values, req); err != nil {
		return err
	}
	c.setMethod(form, values)

	categories := selectOptions(form.Find(`select[name="paid_toward1"]`))
	if len(categories) == 0 {
		return fmt.Errorf("%w: paid_toward1 options", ErrNotFound)
	}
	for i, entry := range req.Allocation {
		chosen := closestOption(categories, entry.Category)
		values.Set(fmt.Sprintf("paid_toward%d", i+1), chosen.value)
		values.Set(fmt.Sprintf("split_amount%d", i+1), entry.Amount.StringFixed(2))
	}

	log := logrus.WithFields(logrus.Fields{"account": req.Account.ID, "reference": req.Reference})
	if c.safeMode {
		log.Info("safe mode: payment form filled but not submitted")
		return nil
	}

	target := landed.String()
	if action, ok := form.Attr("action"); ok && action != "" {
		if ref, err := url.Parse(action); err == nil {
			target = landed.ResolveReference(ref).String()
		}
	}
	result, _, err := c.postForm(ctx, target, values)
	if err != nil {
		return err
	}
	if msg := collapse(result.Find(".errorMessage, .alert-danger").First().Text()); msg != "" {
		return fmt.Errorf("payment rejected: %s", msg)
	}
	if result.Find(".contentInfo").Length() == 0 {
		return errors.New("payment not confirmed")
	}
	log.Info("payment submitted")
	return nil
}

func paymentForm(doc *goquery.Document) *goquery.Selection {
	if form := doc.Find("form#paymentForm"); form.Length() > 0 {
		return form.First()
	}
	return doc.Find("form").FilterFunction(func(_ int, f *goquery.Selection) bool {
		return f.Find(`[name="amount"]`).Length() > 0
	}).First()
}

func setDate(form *goquery.Selection, values url.Values, req model.PaymentRequest) error {
	date := req.Date
	if input := form.Find(`input[name="due_date"]`); input.Length() > 0 {
		values.Set("due_date", date.Format("01/02/2006"))
		return nil
	}

	fields := []struct {
		name       string
		candidates []string
	}{
		{"due_date__mon", []string{strconv.Itoa(int(date.Month())), date.Format("01"), date.Month().String(), date.Format("Jan")}},
		{"due_date__day", []string{strconv.Itoa(date.Day()), date.Format("02")}},
		{"due_date__year", []string{strconv.Itoa(date.Year())}},
	}
	for _, field := range fields {
		sel := form.Find(fmt.Sprintf(`select[name=%q]`, field.name))
		if sel.Length() == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, field.name)
		}
		chosen, ok := matchOption(selectOptions(sel), field.candidates)
		if !ok {
			return fmt.Errorf("no %s option for %s", field.name, date.Format("2006-01-02"))
		}
		values.Set(field.name, chosen.value)
	}
	return nil
}

func (c *Client) setMethod(form *goquery.Selection, values url.Values) {
	field := form.Find(`[name="method"], [name="payment_method"]`).First()
	name, ok := field.Attr("name")
	if !ok {
		logrus.Warn("payment form has no method field")
		return
	}
	if goquery.NodeName(field) == "select" {
		if options := selectOptions(field); len(options) > 0 {
			values.Set(name, closestOption(options, c.paymentMethod).value)
		}
		return
	}
	values.Set(name, c.paymentMethod)
}

func selectOptions(sel *goquery.Selection) []option {
	var options []option
	sel.Find("option").Each(func(_ int, o *goquery.Selection) {
		text := collapse(o.Text())
		value := o.AttrOr("value", text)
		if strings.TrimSpace(value) == "" {
			return
		}
		options = append(options, option{value: value, text: text})
	})
	return options
}

func matchOption(options []option, candidates []string) (option, bool) {
	for _, candidate := range candidates {
		for _, o := range options {
			if strings.EqualFold(o.value, candidate) || strings.EqualFold(o.text, candidate) {
				return o, true
			}
		}
	}
	return option{}, false
}

// closestOption picks the option whose text contains want, otherwise the one
// with the smallest edit distance. options must not be empty.
func closestOption(options []option, want string) option {
	want = strings.ToLower(collapse(want))
	for _, o := range options {
		if strings.Contains(strings.ToLower(o.text), want) {
			return o
		}
	}

	best, bestDistance := options[0], -1
	for _, o := range options {
		distance := levenshtein.DistanceForStrings([]rune(strings.ToLower(o.text)), []rune(want), levenshtein.DefaultOptions)
		if bestDistance < 0 || distance < bestDistance {
			best, bestDistance = o, distance
		}
	}
	return best
}
