package intake

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeMailbox struct {
	messages  []RawMessage
	searchErr error
	seen      []uint32
	closed    bool
}

func (f *fakeMailbox) SearchRequests(_ time.Time, _ string) ([]RawMessage, error) {
	return f.messages, f.searchErr
}

func (f *fakeMailbox) MarkSeen(uid uint32) error {
	f.seen = append(f.seen, uid)
	return nil
}

func (f *fakeMailbox) Close() error {
	f.closed = true
	return nil
}

type fakeStore struct {
	existing  map[string]bool
	created   []*AccessRequest
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{existing: make(map[string]bool)}
}

func dedupKey(email, organization string) string {
	return email + "|" + organization
}

func (f *fakeStore) FindExisting(_ context.Context, email, organization string) (bool, error) {
	return f.existing[dedupKey(email, organization)], nil
}

func (f *fakeStore) Create(_ context.Context, req *AccessRequest) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, req)
	f.existing[dedupKey(req.Email, req.Organization)] = true
	return nil
}

func dialerFor(mb Mailbox) MailboxDialer {
	return func() (Mailbox, error) { return mb, nil }
}

func testConfig() Config {
	return Config{Interval: time.Minute, Subject: "Government Data Access Request"}
}

const endToEndBody = `From: Alex Kim <alex.kim@city.gov>
Subject: Government Data Access Request
Content-Type: text/plain

Organization: City Health Dept
ContactPerson: Alex Kim
Email: ignored@example.com
Purpose: population health analytics
DataTypes: analytics
Justification: public health monitoring
GovernmentLevel: state
Department: Health
AuthorizedOfficials: Alex Kim, alex@city.gov
`

func endToEndMessage() RawMessage {
	return RawMessage{
		UID:    42,
		Header: "Subject: Government Data Access Request\r\nFrom: Alex Kim <alex.kim@city.gov>\r\n",
		Body:   []byte(endToEndBody),
	}
}

func TestPoller_EndToEnd(t *testing.T) {
	t.Parallel()

	mailbox := &fakeMailbox{messages: []RawMessage{endToEndMessage()}}
	requests := newFakeStore()

	p := NewPoller(dialerFor(mailbox), requests, nil, testConfig())

	report, err := p.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("TriggerNow returned error: %v", err)
	}

	if report.EmailsFound != 1 || report.EmailsProcessed != 1 || report.NewRequests != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", report.Errors)
	}

	if len(requests.created) != 1 {
		t.Fatalf("created %d records, want 1", len(requests.created))
	}
	req := requests.created[0]

	// The sender address wins over the body's claimed email
	if req.Email != "alex.kim@city.gov" {
		t.Errorf("email = %q, want sender override", req.Email)
	}
	if diff := cmp.Diff([]string{"analytics_data"}, req.DataTypes); diff != "" {
		t.Errorf("data types mismatch (-want +got):\n%s", diff)
	}
	wantOfficials := []Official{{Name: "Alex Kim", Title: "Contact", Email: "alex@city.gov"}}
	if diff := cmp.Diff(wantOfficials, req.AuthorizedOfficials); diff != "" {
		t.Errorf("officials mismatch (-want +got):\n%s", diff)
	}
	if req.Status != StatusEmailSubmitted || req.Priority != DefaultPriority {
		t.Errorf("status/priority = %q/%q", req.Status, req.Priority)
	}

	if diff := cmp.Diff([]uint32{42}, mailbox.seen); diff != "" {
		t.Errorf("seen flags mismatch (-want +got):\n%s", diff)
	}
	if !mailbox.closed {
		t.Error("mailbox not closed after run")
	}

	wantSummary := []ProcessedRequest{{
		Organization:  "City Health Dept",
		ContactPerson: "Alex Kim",
		Email:         "alex.kim@city.gov",
	}}
	if diff := cmp.Diff(wantSummary, report.ProcessedRequests); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestPoller_DuplicateSkipped(t *testing.T) {
	t.Parallel()

	mailbox := &fakeMailbox{messages: []RawMessage{endToEndMessage()}}
	requests := newFakeStore()
	requests.existing[dedupKey("alex.kim@city.gov", "City Health Dept")] = true

	p := NewPoller(dialerFor(mailbox), requests, nil, testConfig())

	report, err := p.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("TriggerNow returned error: %v", err)
	}

	if report.EmailsProcessed != 1 || report.NewRequests != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Errors) != 0 {
		t.Errorf("duplicate counted as error: %v", report.Errors)
	}
	if len(requests.created) != 0 {
		t.Errorf("duplicate was inserted")
	}
	// Historical policy: the duplicate stays unread
	if len(mailbox.seen) != 0 {
		t.Errorf("duplicate was marked seen: %v", mailbox.seen)
	}
}

func TestPoller_DuplicateMarkSeenPolicy(t *testing.T) {
	t.Parallel()

	mailbox := &fakeMailbox{messages: []RawMessage{endToEndMessage()}}
	requests := newFakeStore()
	requests.existing[dedupKey("alex.kim@city.gov", "City Health Dept")] = true

	cfg := testConfig()
	cfg.MarkSeenOnDuplicate = true
	p := NewPoller(dialerFor(mailbox), requests, nil, cfg)

	if _, err := p.TriggerNow(context.Background()); err != nil {
		t.Fatalf("TriggerNow returned error: %v", err)
	}

	if diff := cmp.Diff([]uint32{42}, mailbox.seen); diff != "" {
		t.Errorf("seen flags mismatch (-want +got):\n%s", diff)
	}
}

func TestPoller_CreateFailureRetriesLater(t *testing.T) {
	t.Parallel()

	mailbox := &fakeMailbox{messages: []RawMessage{endToEndMessage()}}
	requests := newFakeStore()
	requests.createErr = errors.New("connection refused")

	p := NewPoller(dialerFor(mailbox), requests, nil, testConfig())

	report, err := p.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("TriggerNow returned error: %v", err)
	}

	if len(report.Errors) != 1 {
		t.Fatalf("errors = %v, want one insert failure", report.Errors)
	}
	if report.NewRequests != 0 {
		t.Errorf("newRequests = %d", report.NewRequests)
	}
	// Left unread so the next run retries
	if len(mailbox.seen) != 0 {
		t.Errorf("failed message was marked seen")
	}
}

func TestPoller_RejectedMessageIsSilentSkip(t *testing.T) {
	t.Parallel()

	msg := RawMessage{
		UID:    7,
		Header: "From: someone@example.org\r\n",
		Body: []byte(`Content-Type: text/plain

Organization: [Enter your organization]
ContactPerson: Jane Doe
Email: jane@ngo.org
Purpose: testing
DataTypes: volunteers
Justification: testing
`),
	}

	mailbox := &fakeMailbox{messages: []RawMessage{msg}}
	requests := newFakeStore()

	p := NewPoller(dialerFor(mailbox), requests, nil, testConfig())

	report, err := p.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("TriggerNow returned error: %v", err)
	}

	if report.EmailsProcessed != 1 || report.NewRequests != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Errors) != 0 {
		t.Errorf("rejection counted as error: %v", report.Errors)
	}
}

func TestPoller_ConnectFailureAbortsRun(t *testing.T) {
	t.Parallel()

	dial := func() (Mailbox, error) { return nil, fmt.Errorf("dial tcp: connection refused") }
	p := NewPoller(dial, newFakeStore(), nil, testConfig())

	report, err := p.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("TriggerNow returned error: %v", err)
	}

	if len(report.Errors) != 1 {
		t.Errorf("errors = %v, want connect failure recorded", report.Errors)
	}
	if report.EmailsFound != 0 {
		t.Errorf("emailsFound = %d", report.EmailsFound)
	}
}

func TestPoller_TriggerWhileRunning(t *testing.T) {
	t.Parallel()

	p := NewPoller(dialerFor(&fakeMailbox{}), newFakeStore(), nil, testConfig())

	// Hold the run token to simulate an active run
	p.runToken <- struct{}{}
	defer func() { <-p.runToken }()

	if !p.Running() {
		t.Fatal("Running() = false with token held")
	}

	_, err := p.TriggerNow(context.Background())
	if !errors.Is(err, ErrRunActive) {
		t.Errorf("err = %v, want ErrRunActive", err)
	}
}

type fakeNotifier struct {
	received []string
	err      error
}

func (f *fakeNotifier) RequestReceived(req *AccessRequest) error {
	f.received = append(f.received, req.Email)
	return f.err
}

func TestPoller_NotifierFailureDoesNotAffectRun(t *testing.T) {
	t.Parallel()

	mailbox := &fakeMailbox{messages: []RawMessage{endToEndMessage()}}
	notifier := &fakeNotifier{err: errors.New("smtp down")}

	p := NewPoller(dialerFor(mailbox), newFakeStore(), notifier, testConfig())

	report, err := p.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("TriggerNow returned error: %v", err)
	}

	if report.NewRequests != 1 || len(report.Errors) != 0 {
		t.Errorf("report = %+v", report)
	}
	if diff := cmp.Diff([]string{"alex.kim@city.gov"}, notifier.received); diff != "" {
		t.Errorf("notifier calls mismatch (-want +got):\n%s", diff)
	}
}
