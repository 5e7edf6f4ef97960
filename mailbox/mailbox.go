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

package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/studiopay/remit/config"
	"github.com/studiopay/remit/model"
)

const gmailLabelsItem imap.StoreItem = "+X-GM-LABELS"

var ErrNotConnected = errors.New("mailbox is not connected")

// imapClient is the subset of the go-imap client the mailbox uses.
type imapClient interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	UidCopy(seqset *imap.SeqSet, dest string) error
	Create(name string) error
	Logout() error
}

var dialTLS = func(addr string, timeout time.Duration) (imapClient, error) {
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, err
	}
	c.Timeout = timeout
	return c, nil
}

// IMAPMailbox reads transfer notifications from one IMAP folder.
type IMAPMailbox struct {
	conn           imapClient
	folder         string
	processedLabel string
	labelReady     bool
}

// Dial connects, logs in and selects the configured folder read-write.
// Connection and login are retried with exponential backoff up to
// cfg.LoginRetries times.
func Dial(ctx context.Context, cfg config.MailboxConfig) (*IMAPMailbox, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("mailbox username and password are required")
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second

	var conn imapClient
	connect := func() error {
		c, err := dialTLS(cfg.Host, timeout)
		if err != nil {
			return fmt.Errorf("dialing %s: %w", cfg.Host, err)
		}
		if err := c.Login(cfg.Username, cfg.Password); err != nil {
			_ = c.Logout()
			return fmt.Errorf("logging in as %s: %w", cfg.Username, err)
		}
		conn = c
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cfg.LoginRetries)), ctx)
	err := backoff.RetryNotify(connect, policy, func(err error, wait time.Duration) {
		logrus.Warnf("mailbox connection failed, retrying in %s: %v", wait, err)
	})
	if err != nil {
		return nil, err
	}

	if _, err := conn.Select(cfg.Folder, false); err != nil {
		_ = conn.Logout()
		return nil, fmt.Errorf("selecting folder %s: %w", cfg.Folder, err)
	}
	logrus.WithFields(logrus.Fields{"host": cfg.Host, "folder": cfg.Folder}).Info("mailbox connected")

	return newIMAPMailbox(conn, cfg), nil
}

func newIMAPMailbox(conn imapClient, cfg config.MailboxConfig) *IMAPMailbox {
	return &IMAPMailbox{conn: conn, folder: cfg.Folder, processedLabel: cfg.ProcessedLabel}
}

// ListCandidateMessages returns the messages received on or after since,
// oldest UID first. Bodies are fetched with BODY.PEEK so read state is left alone.
func (m *IMAPMailbox) ListCandidateMessages(ctx context.Context, since time.Time, unseenOnly bool) ([]model.RawMessage, error) {
	if m.conn == nil {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	if unseenOnly {
		criteria.WithoutFlags = []string{imap.SeenFlag}
	}
	uids, err := m.conn.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", m.folder, err)
	}
	if len(uids) == 0 {
		return []model.RawMessage{}, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	fetched := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- m.conn.UidFetch(seqset, items, fetched)
	}()

	messages := make([]model.RawMessage, 0, len(uids))
	for msg := range fetched {
		body := msg.GetBody(section)
		if body == nil {
			logrus.WithField("uid", msg.Uid).Warn("message fetched without a body")
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			logrus.WithField("uid", msg.Uid).Warnf("reading message body: %v", err)
			continue
		}
		messages = append(messages, model.RawMessage{Handle: model.MessageHandle(msg.Uid), Raw: raw})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	sort.Slice(messages, func(i, j int) bool { return messages[i].Handle < messages[j].Handle })
	return messages, nil
}

// MarkProcessed flags the message seen and tags it with the processed label.
// The seen flag is the durable marker, so only its failure is returned.
// Gmail servers take the label through X-GM-LABELS; others get a copy in
// the label folder.
func (m *IMAPMailbox) MarkProcessed(ctx context.Context, handle model.MessageHandle) error {
	if m.conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(handle))

	flags := []interface{}{imap.SeenFlag}
	if err := m.conn.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
		return fmt.Errorf("flagging message %d seen: %w", handle, err)
	}

	if m.processedLabel == "" {
		return nil
	}
	m.ensureLabel()

	log := logrus.WithFields(logrus.Fields{"handle": handle, "label": m.processedLabel})
	labels := []interface{}{imap.RawString(quote(m.processedLabel))}
	if err := m.conn.UidStore(seqset, gmailLabelsItem, labels, nil); err != nil {
		log.Debugf("X-GM-LABELS not accepted, copying instead: %v", err)
		if err := m.conn.UidCopy(seqset, m.processedLabel); err != nil {
			log.Warnf("labelling processed message: %v", err)
		}
	}
	return nil
}

// ensureLabel creates the processed label once per session. Servers answer
// an error when it already exists.
func (m *IMAPMailbox) ensureLabel() {
	if m.labelReady {
		return
	}
	if err := m.conn.Create(m.processedLabel); err != nil {
		logrus.WithField("label", m.processedLabel).Debugf("create label: %v", err)
	}
	m.labelReady = true
}

// Close logs out.
func (m *IMAPMailbox) Close() error {
	if m.conn == nil {
		return nil
	}
	err := m.conn.Logout()
	m.conn = nil
	return err
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
