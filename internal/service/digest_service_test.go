package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/newsdigest/internal/domain"
	"github.com/ricirt/newsdigest/internal/mailer"
	"github.com/ricirt/newsdigest/internal/repository"
	"github.com/ricirt/newsdigest/internal/service"
)

const testTemplate = `<p>{PLACE:RECIPIENT}</p><ul>{PLACE:ELEMENT}</ul><a href="{PLACE:UNSUBSCRIBE_URL}">x</a>`

// fakeFetcher returns a fixed list truncated to the requested count and
// remembers every request.
type fakeFetcher struct {
	items     []domain.Item
	err       error
	requested []int
}

func (f *fakeFetcher) Fetch(_ context.Context, max int) ([]domain.Item, error) {
	f.requested = append(f.requested, max)
	if f.err != nil {
		return nil, f.err
	}
	return f.items[:min(max, len(f.items))], nil
}

func rankedItems(n int) []domain.Item {
	items := make([]domain.Item, n)
	for i := range items {
		items[i] = domain.Item{
			ID:     uint64(i + 1),
			Author: "author",
			URL:    fmt.Sprintf("https://example.com/%d", i+1),
			Score:  n - i,
			Title:  fmt.Sprintf("item-%02d", i+1),
		}
	}
	return items
}

type fixture struct {
	repo      *repository.MockSubscriberRepository
	fetcher   *fakeFetcher
	transport *mailer.MockTransport
	sender    string
	tmplPath  string

	runs       []domain.RunState
	deliveries []domain.DeliveryStatus
}

func newFixture(t *testing.T, recipients ...domain.Recipient) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "message.html")
	require.NoError(t, os.WriteFile(path, []byte(testTemplate), 0o600))

	return &fixture{
		repo:      repository.NewMockSubscriberRepository(recipients...),
		fetcher:   &fakeFetcher{items: rankedItems(10)},
		transport: mailer.NewMockTransport(),
		sender:    "digest@example.com",
		tmplPath:  path,
	}
}

func (f *fixture) service() *service.DigestService {
	return service.NewDigestService(
		func(context.Context) (repository.SubscriberRepository, error) { return f.repo, nil },
		f.fetcher,
		mailer.NewDispatcher(f.sender, "id-00", zap.NewNop()),
		f.transport,
		service.Options{TemplatePath: f.tmplPath, UnsubscribeURL: "https://example.com/u?e=", CloseRetries: 5},
		zap.NewNop(),
		service.Hooks{
			OnRun:      func(s domain.RunState, _ time.Duration) { f.runs = append(f.runs, s) },
			OnDelivery: func(s domain.DeliveryStatus) { f.deliveries = append(f.deliveries, s) },
		},
	)
}

func sentTo(sess *mailer.MockSession, email string) string {
	for _, env := range sess.Sent {
		if env.To == email {
			return string(env.Body)
		}
	}
	return ""
}

func TestDigestService_Run_QuotaSlicing(t *testing.T) {
	f := newFixture(t,
		domain.Recipient{Email: "a@x.com", Quota: 5},
		domain.Recipient{Email: "b@x.com", Quota: 10},
		domain.Recipient{Email: "c@x.com", Quota: 3},
	)

	report, err := f.service().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.RunCompleted, report.State)
	require.Equal(t, []int{10}, f.fetcher.requested, "fetch exactly the max quota once")
	require.Equal(t, 3, report.Sent)
	require.Equal(t, 10, report.Items)

	sess := f.transport.Session
	require.Equal(t, 1, f.transport.Opens)
	require.Equal(t, 1, sess.Closed)

	for email, quota := range map[string]int{"a@x.com": 5, "b@x.com": 10, "c@x.com": 3} {
		body := sentTo(sess, email)
		require.Equal(t, quota, strings.Count(body, "<li>"), email)
		require.Contains(t, body, "<p>"+email+"</p>")
		// First quota items, in ranking order.
		last := -1
		for i := 1; i <= quota; i++ {
			idx := strings.Index(body, fmt.Sprintf("item-%02d", i))
			require.Greater(t, idx, last, "%s item %d out of order", email, i)
			last = idx
		}
		require.NotContains(t, body, fmt.Sprintf("item-%02d<", quota+1))
	}

	require.Equal(t, []domain.RunState{domain.RunCompleted}, f.runs)
}

func TestDigestService_Run_ShortListSendsAllAvailable(t *testing.T) {
	f := newFixture(t, domain.Recipient{Email: "a@x.com", Quota: 10})
	f.fetcher.items = rankedItems(4)

	report, err := f.service().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Sent)
	require.Equal(t, 4, report.Outcomes[0].Items)
	require.Equal(t, 4, strings.Count(sentTo(f.transport.Session, "a@x.com"), "<li>"))
}

func TestDigestService_Run_InvalidRecipientIsSkipped(t *testing.T) {
	f := newFixture(t,
		domain.Recipient{Email: "a@x.com", Quota: 10},
		domain.Recipient{Email: "not-an-email", Quota: 10},
		domain.Recipient{Email: "b@x.com", Quota: 10},
	)

	report, err := f.service().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, f.transport.Session.Calls, "exactly two sends attempted")
	require.Equal(t, 2, report.Sent)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, domain.DeliverySkipped, report.Outcomes[1].Status)
	require.Equal(t, []domain.DeliveryStatus{
		domain.DeliverySent, domain.DeliverySkipped, domain.DeliverySent,
	}, f.deliveries)
}

func TestDigestService_Run_SendFailureDoesNotStopLoop(t *testing.T) {
	f := newFixture(t,
		domain.Recipient{Email: "a@x.com", Quota: 2},
		domain.Recipient{Email: "b@x.com", Quota: 2},
		domain.Recipient{Email: "c@x.com", Quota: 2},
	)
	f.transport.Session.FailFor = map[string]error{"b@x.com": errors.New("452 too many recipients")}

	report, err := f.service().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.RunCompleted, report.State)
	require.Equal(t, 2, report.Sent)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, []string{"a@x.com", "c@x.com"}, []string{
		f.transport.Session.Sent[0].To, f.transport.Session.Sent[1].To,
	})
}

func TestDigestService_Run_NoRecipientsIsNoOp(t *testing.T) {
	f := newFixture(t)

	report, err := f.service().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.RunNoOp, report.State)
	require.Empty(t, f.fetcher.requested, "no fetch without recipients")
	require.Zero(t, f.transport.Opens)
	require.Equal(t, 1, f.repo.CloseCalls)
}

func TestDigestService_Run_NoContent(t *testing.T) {
	t.Run("empty ranking", func(t *testing.T) {
		f := newFixture(t, domain.Recipient{Email: "a@x.com", Quota: 5})
		f.fetcher.items = nil

		report, err := f.service().Run(context.Background())
		require.ErrorIs(t, err, domain.ErrNoContent)
		require.Equal(t, domain.RunNoContent, report.State)
		require.Zero(t, f.transport.Opens, "no session without content")
		require.Zero(t, f.transport.Session.Calls)
	})

	t.Run("ranking unreachable", func(t *testing.T) {
		f := newFixture(t, domain.Recipient{Email: "a@x.com", Quota: 5})
		down := errors.New("connection refused")
		f.fetcher.err = down

		report, err := f.service().Run(context.Background())
		require.ErrorIs(t, err, domain.ErrNoContent)
		require.ErrorIs(t, err, down)
		require.Equal(t, domain.RunNoContent, report.State)
		require.Zero(t, f.transport.Session.Calls)
	})
}

func TestDigestService_Run_FatalFailures(t *testing.T) {
	t.Run("store read", func(t *testing.T) {
		f := newFixture(t, domain.Recipient{Email: "a@x.com", Quota: 5})
		f.repo.ListErr = errors.New("disk I/O error")

		report, err := f.service().Run(context.Background())
		require.ErrorIs(t, err, domain.ErrStoreRead)
		require.Equal(t, domain.RunFailed, report.State)
		require.Equal(t, 1, f.repo.CloseCalls, "store is closed even when the read fails")
		require.Empty(t, f.fetcher.requested)
	})

	t.Run("invalid sender", func(t *testing.T) {
		f := newFixture(t, domain.Recipient{Email: "a@x.com", Quota: 5})
		f.sender = "not a sender"

		_, err := f.service().Run(context.Background())
		require.ErrorIs(t, err, domain.ErrInvalidSender)
		require.Zero(t, f.transport.Opens)
	})

	t.Run("missing template", func(t *testing.T) {
		f := newFixture(t, domain.Recipient{Email: "a@x.com", Quota: 5})
		f.tmplPath = filepath.Join(t.TempDir(), "gone.html")

		_, err := f.service().Run(context.Background())
		require.ErrorIs(t, err, domain.ErrTemplate)
		require.Empty(t, f.fetcher.requested)
	})

	t.Run("session", func(t *testing.T) {
		f := newFixture(t, domain.Recipient{Email: "a@x.com", Quota: 5})
		authErr := errors.New("535 authentication failed")
		f.transport.OpenErr = authErr

		report, err := f.service().Run(context.Background())
		require.ErrorIs(t, err, domain.ErrSessionUnavailable)
		require.ErrorIs(t, err, authErr)
		require.Equal(t, domain.RunFailed, report.State)
		require.Zero(t, f.transport.Session.Calls)
	})
}

func TestDigestService_Run_StoreCloseRetriedButNotFatal(t *testing.T) {
	f := newFixture(t, domain.Recipient{Email: "a@x.com", Quota: 1})
	f.repo.CloseFailures = 100
	f.repo.CloseErr = errors.New("database is locked")

	report, err := f.service().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, f.repo.CloseCalls)
	require.Equal(t, 1, report.Sent)
}

func TestDigestService_Run_CancelledContextStopsLoop(t *testing.T) {
	f := newFixture(t,
		domain.Recipient{Email: "a@x.com", Quota: 1},
		domain.Recipient{Email: "b@x.com", Quota: 1},
	)
	ctx, cancel := context.WithCancel(context.Background())
	f.transport.Session.OnSend = func(mailer.Envelope) { cancel() }

	report, err := f.service().Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Sent)
	require.Len(t, report.Outcomes, 1)
	require.Equal(t, 1, f.transport.Session.Closed)
}

func TestDigestService_Run_EachRunHasItsOwnID(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	first, err := svc.Run(context.Background())
	require.NoError(t, err)
	second, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.RunID, second.RunID)
}
