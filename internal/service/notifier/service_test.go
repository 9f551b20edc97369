package notifier

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/sharelink/internal/adapter/sqlite"
	"github.com/vertextoedge/sharelink/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []sentMail
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[to] {
		return errors.New("550 mailbox unavailable")
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type testEnv struct {
	svc    *Service
	store  *sqlite.Store
	mailer *fakeMailer
	clock  *fakeClock
	share  *domain.Share
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "shares.db"), sqlite.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &fakeClock{now: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)}
	share := &domain.Share{
		Token:      strings.Repeat("ab", 16),
		OwnerID:    7,
		FileID:     42,
		Permission: domain.PermissionViewOnly,
		CreatedAt:  clock.Now(),
		Active:     true,
	}
	require.NoError(t, store.CreateShare(ctx, share))

	mailer := &fakeMailer{fail: map[string]bool{}}
	svc := New(DefaultConfig(), store, mailer, nil, clock, nil, zap.NewNop())

	ids := 0
	svc.newID = func() string {
		ids++
		return fmt.Sprintf("notification-%d", ids)
	}

	return &testEnv{svc: svc, store: store, mailer: mailer, clock: clock, share: share}
}

func TestNotify_OneFailureDoesNotAbortOthers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mailer.fail["bob@example.com"] = true

	results, err := env.svc.Notify(ctx, env.share.ID, []string{"alice@example.com", "bob@example.com", "carol@example.com"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Delivered)
	assert.False(t, results[1].Delivered)
	assert.NotEmpty(t, results[1].Error)
	assert.True(t, results[2].Delivered)
	assert.Len(t, env.mailer.sent, 2)

	stats, err := env.store.GetNotificationStats(ctx, env.share.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Sent)
	assert.Equal(t, int64(2), stats.Delivered)

	pending, err := env.svc.FindRetryable(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "bob@example.com", pending[0].RecipientEmail)
	assert.Equal(t, results[1].NotificationID, pending[0].NotificationID)
	assert.Contains(t, pending[0].LastError, "550")
}

func TestNotify_BodyCarriesLink(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Notify(context.Background(), env.share.ID, []string{"Alice <alice@example.com>"})
	require.NoError(t, err)
	require.Len(t, env.mailer.sent, 1)

	msg := env.mailer.sent[0]
	assert.Equal(t, "alice@example.com", msg.to)
	assert.Contains(t, msg.body, "/s/"+env.share.Token)
	assert.Contains(t, msg.body, "viewing only")
}

func TestNotify_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Notify(ctx, env.share.ID, nil)
	assert.ErrorIs(t, err, domain.ErrNoRecipients)
	assert.True(t, domain.IsValidation(err))

	_, err = env.svc.Notify(ctx, 999, []string{"alice@example.com"})
	assert.ErrorIs(t, err, domain.ErrShareNotFound)

	results, err := env.svc.Notify(ctx, env.share.ID, []string{"not an address", "alice@example.com", "ALICE@example.com"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "invalid email address", results[0].Error)
	assert.True(t, results[1].Delivered)
	assert.Equal(t, "duplicate recipient", results[2].Error)

	stats, err := env.store.GetNotificationStats(ctx, env.share.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Sent)
}

func TestNotifyAsOwner(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.NotifyAsOwner(context.Background(), env.share.ID, 99, []string{"alice@example.com"})
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	results, err := env.svc.NotifyAsOwner(context.Background(), env.share.ID, 7, []string{"alice@example.com"})
	require.NoError(t, err)
	assert.True(t, results[0].Delivered)
}

func TestRetryPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mailer.fail["bob@example.com"] = true

	_, err := env.svc.Notify(ctx, env.share.ID, []string{"alice@example.com", "bob@example.com"})
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	report, err := env.svc.RetryPending(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Failed)

	delete(env.mailer.fail, "bob@example.com")
	report, err = env.svc.RetryPending(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)

	pending, err := env.svc.FindRetryable(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err := env.store.GetNotificationStats(ctx, env.share.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Delivered)
}

func TestRetryPending_RespectsWindowAndAttemptCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.svc.config.MaxAttempts = 2
	env.mailer.fail["bob@example.com"] = true

	_, err := env.svc.Notify(ctx, env.share.ID, []string{"bob@example.com"})
	require.NoError(t, err)

	report, err := env.svc.RetryPending(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	report, err = env.svc.RetryPending(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Equal(t, 1, report.Skipped)

	env.clock.Advance(2 * time.Hour)
	pending, err := env.svc.FindRetryable(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
