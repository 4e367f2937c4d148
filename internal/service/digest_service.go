package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ricirt/newsdigest/internal/db"
	"github.com/ricirt/newsdigest/internal/digest"
	"github.com/ricirt/newsdigest/internal/domain"
	"github.com/ricirt/newsdigest/internal/mailer"
	"github.com/ricirt/newsdigest/internal/repository"
)

// ContentFetcher returns up to max ranked items. An error means the ranking
// itself could not be read.
type ContentFetcher interface {
	Fetch(ctx context.Context, max int) ([]domain.Item, error)
}

// StoreOpener opens the recipient store for one read.
type StoreOpener func(ctx context.Context) (repository.SubscriberRepository, error)

// Options carries the per-run settings of the pipeline.
type Options struct {
	TemplatePath   string
	UnsubscribeURL string
	CloseRetries   int
}

// Hooks carries the metric callback functions injected by main.
// Every field is optional.
type Hooks struct {
	OnRun          func(state domain.RunState, d time.Duration)
	OnItemsFetched func(n int)
	OnDelivery     func(status domain.DeliveryStatus)
}

// Outcome records what happened to one recipient.
type Outcome struct {
	Email  string                `json:"email"`
	Items  int                   `json:"items"`
	Status domain.DeliveryStatus `json:"status"`
	Err    error                 `json:"-"`
}

// Report summarises a run.
type Report struct {
	RunID      string          `json:"run_id"`
	State      domain.RunState `json:"state"`
	Recipients int             `json:"recipients"`
	Items      int             `json:"items"`
	Sent       int             `json:"sent"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	Outcomes   []Outcome       `json:"outcomes"`
	Duration   time.Duration   `json:"duration"`
}

// DigestService runs the fetch, render and dispatch pipeline.
// Runs are strictly sequential internally; callers must not run two at once
// because they would share one mail session.
type DigestService struct {
	openStore  StoreOpener
	fetcher    ContentFetcher
	dispatcher *mailer.Dispatcher
	transport  mailer.Transport
	opts       Options
	logger     *zap.Logger
	hooks      Hooks
}

func NewDigestService(
	openStore StoreOpener,
	fetcher ContentFetcher,
	dispatcher *mailer.Dispatcher,
	transport mailer.Transport,
	opts Options,
	logger *zap.Logger,
	hooks Hooks,
) *DigestService {
	if hooks.OnRun == nil {
		hooks.OnRun = func(domain.RunState, time.Duration) {}
	}
	if hooks.OnItemsFetched == nil {
		hooks.OnItemsFetched = func(int) {}
	}
	if hooks.OnDelivery == nil {
		hooks.OnDelivery = func(domain.DeliveryStatus) {}
	}
	return &DigestService{
		openStore:  openStore,
		fetcher:    fetcher,
		dispatcher: dispatcher,
		transport:  transport,
		opts:       opts,
		logger:     logger,
		hooks:      hooks,
	}
}

// Run executes one digest run:
//
//	load recipients -> (none: NoOp) -> validate sender -> load template ->
//	fetch max-quota items -> (none: NoContent) -> open session ->
//	render and send per recipient -> close session
//
// Failures that end the run are returned as errors; the report is always
// non-nil. Per-recipient failures are recorded in the report only.
func (s *DigestService) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), State: domain.RunFailed}
	log := s.logger.With(zap.String("run_id", report.RunID))

	defer func() {
		report.Duration = time.Since(start)
		s.hooks.OnRun(report.State, report.Duration)
	}()

	recipients, err := s.loadRecipients(ctx, log)
	if err != nil {
		log.Error("failed to load recipients", zap.Error(err))
		return report, err
	}
	report.Recipients = len(recipients)
	log.Debug("loaded recipients", zap.Int("count", len(recipients)))

	if len(recipients) == 0 {
		log.Info("no recipients found, nothing to send")
		report.State = domain.RunNoOp
		return report, nil
	}

	// The sender is shared by every envelope, so a bad one ends the run.
	if err := domain.ValidateAddress(s.dispatcher.Sender()); err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrInvalidSender, err)
		log.Error("cannot send any digest", zap.Error(err))
		return report, err
	}

	tmpl, err := digest.LoadTemplate(s.opts.TemplatePath)
	if err != nil {
		log.Error("cannot render digests", zap.String("path", s.opts.TemplatePath), zap.Error(err))
		return report, err
	}

	maxQuota := domain.MaxQuota(recipients)
	items, err := s.fetcher.Fetch(ctx, maxQuota)
	if err != nil {
		log.Error("failed to fetch ranking", zap.Error(err))
	}
	report.Items = len(items)
	s.hooks.OnItemsFetched(len(items))

	if len(items) == 0 {
		report.State = domain.RunNoContent
		log.Error("no items available, nothing to send to recipients", zap.Int("requested", maxQuota))
		if err != nil {
			return report, fmt.Errorf("%w: %w", domain.ErrNoContent, err)
		}
		return report, domain.ErrNoContent
	}
	log.Debug("fetched items", zap.Int("requested", maxQuota), zap.Int("fetched", len(items)))

	sess, err := s.transport.Open(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrSessionUnavailable, err)
		}
		log.Error("failed to open mail session", zap.Error(err))
		return report, err
	}
	log.Debug("mail session open")

	s.dispatchAll(ctx, log, sess, recipients, items, tmpl, report)

	if err := sess.Close(); err != nil {
		log.Warn("failed to close mail session", zap.Error(err))
	}

	report.State = domain.RunCompleted
	log.Info("digest run completed",
		zap.Int("recipients", report.Recipients),
		zap.Int("items", report.Items),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// loadRecipients opens the store, reads it once and closes it before any
// network fetch starts. Closing is retried and never fails the run.
func (s *DigestService) loadRecipients(ctx context.Context, log *zap.Logger) ([]domain.Recipient, error) {
	store, err := s.openStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", domain.ErrStoreRead, err)
	}

	recipients, listErr := store.ListRecipients(ctx)
	db.CloseWithRetry(store, s.opts.CloseRetries, log)

	if listErr != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreRead, listErr)
	}
	return recipients, nil
}

func (s *DigestService) dispatchAll(
	ctx context.Context,
	log *zap.Logger,
	sess mailer.Session,
	recipients []domain.Recipient,
	items []domain.Item,
	tmpl string,
	report *Report,
) {
	report.Outcomes = make([]Outcome, 0, len(recipients))

	for i, r := range recipients {
		if err := ctx.Err(); err != nil {
			log.Warn("run cancelled, remaining recipients not served",
				zap.Int("remaining", len(recipients)-i), zap.Error(err))
			return
		}

		slice := digest.Slice(items, r.Quota)
		body := digest.Render(slice, r.Email, tmpl, s.opts.UnsubscribeURL)
		err := s.dispatcher.Send(ctx, sess, r.Email, body)

		outcome := Outcome{Email: r.Email, Items: len(slice), Err: err}
		switch {
		case err == nil:
			outcome.Status = domain.DeliverySent
			report.Sent++
		case errors.Is(err, domain.ErrInvalidRecipient):
			outcome.Status = domain.DeliverySkipped
			report.Skipped++
		default:
			outcome.Status = domain.DeliveryFailed
			report.Failed++
		}

		report.Outcomes = append(report.Outcomes, outcome)
		s.hooks.OnDelivery(outcome.Status)
	}
}
