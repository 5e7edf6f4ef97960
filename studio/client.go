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

// Package studio drives the Studio Director web back office over plain HTTP.
// It implements the account directory, charge source and payment applier the
// reconciliation engine works through.
package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/studiopay/remit/config"
)

const (
	loginPath   = "login.sd"
	adminPath   = "admin.sd"
	accountPath = "account.sd"
	ledgerPath  = "ledger.sd"
	paymentPath = "payment.sd"
	chargesPath = "reports/unpaid_charges.sd"
)

var (
	ErrLoginFailed = errors.New("studio login failed")
	ErrNotFound    = errors.New("studio page element not found")
)

// Client is one authenticated back office session. It is not safe for
// concurrent use; a run drives it one intent at a time.
type Client struct {
	baseURL       *url.URL
	http          *http.Client
	username      string
	password      string
	paymentMethod string
	loginRetries  int
	safeMode      bool
}

// NewClient prepares a session for cfg. Nothing is sent until Open.
// In safe mode ApplyPayment fills the payment form but never submits it.
func NewClient(cfg config.StudioConfig, safeMode bool) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid studio base url %q", cfg.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DEFAULT_TIMEOUT_SEC) * time.Second
	}
	return &Client{
		baseURL:       base,
		http:          &http.Client{Jar: jar, Timeout: timeout},
		username:      cfg.Username,
		password:      cfg.Password,
		paymentMethod: cfg.PaymentMethod,
		loginRetries:  cfg.LoginRetries,
		safeMode:      safeMode,
	}, nil
}

// Open logs in, retrying with exponential backoff.
func (c *Client) Open(ctx context.Context) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.loginRetries)), ctx)
	return backoff.RetryNotify(func() error {
		return c.Login(ctx)
	}, policy, func(err error, wait time.Duration) {
		logrus.Warnf("studio login failed, retrying in %s: %v", wait, err)
	})
}

// Login posts the credentials. The session is authenticated when the
// response lands on the admin page or shows the account search box.
func (c *Client) Login(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return backoff.Permanent(fmt.Errorf("%w: username and password are required", ErrLoginFailed))
	}
	if _, _, err := c.get(ctx, loginPath); err != nil {
		return err
	}

	doc, landed, err := c.postForm(ctx, c.resolve(loginPath), url.Values{
		"username": {c.username},
		"password": {c.password},
	})
	if err != nil {
		return err
	}
	if strings.Contains(landed.Path, adminPath) || doc.Find("#search").Length() > 0 {
		logrus.WithField("user", c.username).Info("studio session established")
		return nil
	}
	return fmt.Errorf("%w: landed on %s", ErrLoginFailed, landed.Path)
}

// Close drops the session cookies.
func (c *Client) Close() {
	if jar, err := cookiejar.New(nil); err == nil {
		c.http.Jar = jar
	}
}

func (c *Client) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return c.baseURL.String() + ref
	}
	return c.baseURL.ResolveReference(u).String()
}

func (c *Client) get(ctx context.Context, ref string) (*goquery.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(ref), nil)
	if err != nil {
		return nil, nil, err
	}
	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, target string, form url.Values) (*goquery.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*goquery.Document, *url.URL, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, nil, fmt.Errorf("%s %s failed with status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", req.URL.Path, err)
	}
	landed := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		landed = resp.Request.URL
	}
	return doc, landed, nil
}

// fieldValue reads a form field by name: the value attribute of an input,
// the text of a textarea, or the selected option of a select.
func fieldValue(doc *goquery.Selection, name string) string {
	field := doc.Find(fmt.Sprintf(`[name=%q]`, name)).First()
	if field.Length() == 0 {
		return ""
	}
	switch goquery.NodeName(field) {
	case "textarea":
		return strings.TrimSpace(field.Text())
	case "select":
		return strings.TrimSpace(field.Find("option[selected]").AttrOr("value", ""))
	default:
		return strings.TrimSpace(field.AttrOr("value", ""))
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
