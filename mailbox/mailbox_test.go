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
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/studiopay/remit/config"
	"github.com/studiopay/remit/model"
)

type mockIMAP struct {
	mock.Mock
	bodies map[uint32]string
}

func (m *mockIMAP) Login(username, password string) error {
	return m.Called(username, password).Error(0)
}

func (m *mockIMAP) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	args := m.Called(name, readOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*imap.MailboxStatus), args.Error(1)
}

func (m *mockIMAP) UidSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	args := m.Called(criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint32), args.Error(1)
}

func (m *mockIMAP) UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	args := m.Called(seqset, items)
	for _, uid := range []uint32{30, 12} {
		body, ok := m.bodies[uid]
		if !ok || !seqset.Contains(uid) {
			continue
		}
		msg := imap.NewMessage(uid, items)
		msg.Uid = uid
		msg.Body[&imap.BodySectionName{}] = bytes.NewBufferString(body)
		ch <- msg
	}
	return args.Error(0)
}

func (m *mockIMAP) UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error {
	return m.Called(seqset, item, value).Error(0)
}

func (m *mockIMAP) UidCopy(seqset *imap.SeqSet, dest string) error {
	return m.Called(seqset, dest).Error(0)
}

func (m *mockIMAP) Create(name string) error {
	return m.Called(name).Error(0)
}

func (m *mockIMAP) Logout() error {
	return m.Called().Error(0)
}

func testConfig() config.MailboxConfig {
	return config.MailboxConfig{
		Host:           "imap.example.com:993",
		Username:       "payments@example.com",
		Password:       "app-password",
		Folder:         "INBOX",
		ProcessedLabel: "2025 Payments EFT's",
		TimeoutSec:     5,
		LoginRetries:   2,
	}
}

func withDialer(t *testing.T, dial func(addr string, timeout time.Duration) (imapClient, error)) {
	original := dialTLS
	dialTLS = dial
	t.Cleanup(func() { dialTLS = original })
}

func TestDial_RetriesLoginThenSelectsFolder(t *testing.T) {
	conn := new(mockIMAP)
	conn.On("Login", "payments@example.com", "app-password").Return(errors.New("temporary failure")).Once()
	conn.On("Login", "payments@example.com", "app-password").Return(nil).Once()
	conn.On("Logout").Return(nil)
	conn.On("Select", "INBOX", false).Return(&imap.MailboxStatus{Name: "INBOX"}, nil)

	dials := 0
	withDialer(t, func(addr string, timeout time.Duration) (imapClient, error) {
		dials++
		assert.Equal(t, "imap.example.com:993", addr)
		assert.Equal(t, 5*time.Second, timeout)
		return conn, nil
	})

	mb, err := Dial(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, dials)
	assert.Equal(t, "INBOX", mb.folder)
	conn.AssertExpectations(t)
}

func TestDial_GivesUpAfterRetries(t *testing.T) {
	dials := 0
	withDialer(t, func(string, time.Duration) (imapClient, error) {
		dials++
		return nil, errors.New("connection refused")
	})

	_, err := Dial(context.Background(), testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 3, dials)
}

func TestDial_RequiresCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Password = ""
	_, err := Dial(context.Background(), cfg)
	assert.Error(t, err)
}

func TestListCandidateMessages(t *testing.T) {
	conn := &mockIMAP{bodies: map[uint32]string{
		12: "Subject: Interac e-Transfer\r\n\r\nfirst",
		30: "Subject: Interac e-Transfer\r\n\r\nsecond",
	}}
	since := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	conn.On("UidSearch", mock.MatchedBy(func(c *imap.SearchCriteria) bool {
		return c.Since.Equal(since) && len(c.WithoutFlags) == 1 && c.WithoutFlags[0] == imap.SeenFlag
	})).Return([]uint32{12, 30}, nil)
	conn.On("UidFetch", mock.Anything, mock.MatchedBy(func(items []imap.FetchItem) bool {
		for _, item := range items {
			if item == "BODY.PEEK[]" {
				return true
			}
		}
		return false
	})).Return(nil)

	mb := newIMAPMailbox(conn, testConfig())
	messages, err := mb.ListCandidateMessages(context.Background(), since, true)
	require.NoError(t, err)

	require.Len(t, messages, 2)
	assert.Equal(t, model.MessageHandle(12), messages[0].Handle)
	assert.Contains(t, string(messages[0].Raw), "first")
	assert.Equal(t, model.MessageHandle(30), messages[1].Handle)
	conn.AssertExpectations(t)
}

func TestListCandidateMessages_AllMessages(t *testing.T) {
	conn := new(mockIMAP)
	conn.On("UidSearch", mock.MatchedBy(func(c *imap.SearchCriteria) bool {
		return len(c.WithoutFlags) == 0
	})).Return([]uint32{}, nil)

	mb := newIMAPMailbox(conn, testConfig())
	messages, err := mb.ListCandidateMessages(context.Background(), time.Now(), false)
	require.NoError(t, err)
	assert.Empty(t, messages)
	conn.AssertNotCalled(t, "UidFetch", mock.Anything, mock.Anything)
}

func TestListCandidateMessages_SearchError(t *testing.T) {
	conn := new(mockIMAP)
	conn.On("UidSearch", mock.Anything).Return(nil, errors.New("BAD command"))

	mb := newIMAPMailbox(conn, testConfig())
	_, err := mb.ListCandidateMessages(context.Background(), time.Now(), true)
	assert.ErrorContains(t, err, "BAD command")
}

func TestMarkProcessed_GmailLabel(t *testing.T) {
	conn := new(mockIMAP)
	conn.On("UidStore", mock.Anything, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.SeenFlag}).Return(nil)
	conn.On("Create", "2025 Payments EFT's").Return(errors.New("ALREADYEXISTS")).Once()
	conn.On("UidStore", mock.Anything, gmailLabelsItem, []interface{}{imap.RawString(`"2025 Payments EFT's"`)}).Return(nil)

	mb := newIMAPMailbox(conn, testConfig())
	require.NoError(t, mb.MarkProcessed(context.Background(), 42))
	require.NoError(t, mb.MarkProcessed(context.Background(), 42))

	conn.AssertNumberOfCalls(t, "Create", 1)
	conn.AssertNotCalled(t, "UidCopy", mock.Anything, mock.Anything)
}

func TestMarkProcessed_CopyFallback(t *testing.T) {
	conn := new(mockIMAP)
	conn.On("UidStore", mock.Anything, imap.FormatFlagsOp(imap.AddFlags, true), mock.Anything).Return(nil)
	conn.On("Create", mock.Anything).Return(nil)
	conn.On("UidStore", mock.Anything, gmailLabelsItem, mock.Anything).Return(errors.New("unknown item"))
	conn.On("UidCopy", mock.Anything, "2025 Payments EFT's").Return(errors.New("no such mailbox"))

	mb := newIMAPMailbox(conn, testConfig())
	assert.NoError(t, mb.MarkProcessed(context.Background(), 7))
	conn.AssertExpectations(t)
}

func TestMarkProcessed_SeenFailureIsReturned(t *testing.T) {
	conn := new(mockIMAP)
	conn.On("UidStore", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	mb := newIMAPMailbox(conn, testConfig())
	assert.ErrorContains(t, mb.MarkProcessed(context.Background(), 7), "connection reset")
}

func TestClose(t *testing.T) {
	conn := new(mockIMAP)
	conn.On("Logout").Return(nil).Once()

	mb := newIMAPMailbox(conn, testConfig())
	require.NoError(t, mb.Close())
	require.NoError(t, mb.Close())

	_, err := mb.ListCandidateMessages(context.Background(), time.Now(), true)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"a \"b\" \\c"`, quote(`a "b" \c`))
}
