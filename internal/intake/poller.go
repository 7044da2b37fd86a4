package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// ErrRunActive is returned by TriggerNow while another run is in flight.
// Two concurrent runs against the same mailbox could double-process or race
// on mark-seen, so triggers are skipped rather than queued.
var ErrRunActive = errors.New("a poll run is already active")

// ProcessedRequest is the short per-record summary carried in a Report.
type ProcessedRequest struct {
	Organization  string `json:"organization"`
	ContactPerson string `json:"contactPerson"`
	Email         string `json:"email"`
}

// Report is the outcome of one poll run.
type Report struct {
	EmailsFound       int                `json:"emailsFound"`
	EmailsProcessed   int                `json:"emailsProcessed"`
	NewRequests       int                `json:"newRequests"`
	Errors            []string           `json:"errors"`
	ProcessedRequests []ProcessedRequest `json:"processedRequests"`
	StartedAt         time.Time          `json:"startedAt"`
	FinishedAt        time.Time          `json:"finishedAt"`
}

// Config carries the poller's tunables.
type Config struct {
	// Interval between scheduled runs.
	Interval time.Duration
	// Subject is the marker string request emails carry.
	Subject string
	// MarkSeenOnDuplicate controls whether a message whose record already
	// exists is flagged seen. The historical behavior is false: the message
	// stays unread and is reconsidered every cycle until it ages out of the
	// since-today search window.
	MarkSeenOnDuplicate bool
}

// ConfigFromViper reads the poller tunables from the loaded configuration.
func ConfigFromViper() Config {
	cfg := Config{
		Interval:            viper.GetDuration("poll.interval"),
		Subject:             viper.GetString("filter.subject"),
		MarkSeenOnDuplicate: viper.GetBool("poll.mark_seen_on_duplicate"),
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.Subject == "" {
		cfg.Subject = "Government Data Access Request"
	}
	return cfg
}

// Poller owns the mailbox polling lifecycle: a recurring timer, an
// on-demand trigger, and the per-message pipeline. Runs are serialized
// through a single-flight token.
type Poller struct {
	dial     MailboxDialer
	store    RequestStore
	notifier Notifier
	cfg      Config

	runToken chan struct{}

	mu   sync.Mutex
	last *Report
}

// NewPoller assembles a poller. notifier may be nil.
func NewPoller(dial MailboxDialer, store RequestStore, notifier Notifier, cfg Config) *Poller {
	return &Poller{
		dial:     dial,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		runToken: make(chan struct{}, 1),
	}
}

// Start runs one cycle immediately, then one per interval until ctx is
// cancelled. A run in progress when ctx is cancelled completes.
func (p *Poller) Start(ctx context.Context) {
	slog.Info("Starting mailbox poller", "interval", p.cfg.Interval, "subject", p.cfg.Subject)

	p.runScheduled(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Mailbox poller stopped")
			return
		case <-ticker.C:
			p.runScheduled(ctx)
		}
	}
}

func (p *Poller) runScheduled(ctx context.Context) {
	if _, err := p.TriggerNow(ctx); errors.Is(err, ErrRunActive) {
		slog.Debug("Skipping scheduled run, another run is active")
	}
}

// TriggerNow executes one poll cycle and returns its report. If a run is
// already active it returns ErrRunActive without waiting.
func (p *Poller) TriggerNow(ctx context.Context) (*Report, error) {
	select {
	case p.runToken <- struct{}{}:
	default:
		return nil, ErrRunActive
	}
	defer func() { <-p.runToken }()

	report := p.runOnce(ctx)

	p.mu.Lock()
	p.last = report
	p.mu.Unlock()

	return report, nil
}

// LastReport returns the most recent run's report, or nil before the first
// run completes.
func (p *Poller) LastReport() *Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Running reports whether a poll run is currently in flight.
func (p *Poller) Running() bool {
	return len(p.runToken) > 0
}

func (p *Poller) runOnce(ctx context.Context) *Report {
	report := &Report{
		Errors:            []string{},
		ProcessedRequests: []ProcessedRequest{},
		StartedAt:         time.Now(),
	}
	defer func() { report.FinishedAt = time.Now() }()

	mailbox, err := p.dial()
	if err != nil {
		slog.Error("Mailbox connection failed", "error", err)
		report.Errors = append(report.Errors, fmt.Sprintf("mailbox connect: %v", err))
		return report
	}
	defer func() { _ = mailbox.Close() }()

	messages, err := mailbox.SearchRequests(startOfToday(), p.cfg.Subject)
	if err != nil {
		slog.Error("Mailbox search failed", "error", err)
		report.Errors = append(report.Errors, fmt.Sprintf("mailbox search: %v", err))
		return report
	}

	report.EmailsFound = len(messages)
	slog.Info("Poll run found messages", "count", len(messages))

	// Strictly sequential: the connection and its mark-seen side effect are
	// not safe for concurrent use.
	for _, msg := range messages {
		created, err := p.processMessage(ctx, mailbox, msg)
		report.EmailsProcessed++

		if err != nil {
			slog.Error("Failed to process message", "uid", msg.UID, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("message %d: %v", msg.UID, err))
			continue
		}

		if created != nil {
			report.NewRequests++
			report.ProcessedRequests = append(report.ProcessedRequests, ProcessedRequest{
				Organization:  created.Organization,
				ContactPerson: created.ContactPerson,
				Email:         created.Email,
			})
		}
	}

	slog.Info("Poll run completed",
		"found", report.EmailsFound,
		"processed", report.EmailsProcessed,
		"new_requests", report.NewRequests,
		"errors", len(report.Errors))

	return report
}

// processMessage runs the full pipeline for one message. A nil, nil return
// means the message was skipped (rejection or duplicate); a non-nil error
// is a genuine processing failure. A panic anywhere in the pipeline is
// recovered here so one bad message never aborts the batch.
func (p *Poller) processMessage(ctx context.Context, mailbox Mailbox, msg RawMessage) (created *AccessRequest, err error) {
	defer func() {
		if r := recover(); r != nil {
			created = nil
			err = fmt.Errorf("panic while processing: %v", r)
		}
	}()

	body := DecodeBody(msg.Body)
	if body == "" {
		slog.Info("Message has no usable body, skipping", "uid", msg.UID)
		return nil, nil
	}

	sender := ResolveSender(msg.Header, msg.Envelope)

	req, err := Normalize(Extract(body), sender)
	if err != nil {
		if IsReject(err) {
			slog.Info("Skipping message", "uid", msg.UID, "reason", err)
			return nil, nil
		}
		return nil, err
	}

	exists, err := p.store.FindExisting(ctx, req.Email, req.Organization)
	if err != nil {
		return nil, fmt.Errorf("duplicate lookup: %w", err)
	}

	if exists {
		slog.Info("Access request already recorded, skipping",
			"uid", msg.UID, "email", req.Email, "organization", req.Organization)
		if p.cfg.MarkSeenOnDuplicate {
			if err := mailbox.MarkSeen(msg.UID); err != nil {
				slog.Error("Failed to mark duplicate as seen", "uid", msg.UID, "error", err)
			}
		}
		return nil, nil
	}

	if err := p.store.Create(ctx, req); err != nil {
		// Left unread so a later run retries the insert
		return nil, fmt.Errorf("create access request: %w", err)
	}

	slog.Info("Access request created from email",
		"organization", req.Organization, "email", req.Email)

	if p.notifier != nil {
		if err := p.notifier.RequestReceived(req); err != nil {
			slog.Warn("Receipt notification failed", "email", req.Email, "error", err)
		}
	}

	if err := mailbox.MarkSeen(msg.UID); err != nil {
		return nil, err
	}

	return req, nil
}

// startOfToday is the lower bound of the search window: midnight of the
// current calendar day, local time.
func startOfToday() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
