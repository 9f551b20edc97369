package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/sharelink/internal/domain"
)

var testNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	opts := DefaultOptions()
	opts.QueryTimeout = 30 * time.Second
	opts.BusyTimeout = 30 * time.Second

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "shares.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func newShare(token string, maxAccess *int64, expiresAt *time.Time) *domain.Share {
	return &domain.Share{
		Token:      token,
		OwnerID:    7,
		FileID:     42,
		Permission: domain.PermissionDownload,
		CreatedAt:  testNow,
		ExpiresAt:  expiresAt,
		Active:     true,
		MaxAccess:  maxAccess,
	}
}

func testToken(i int) string {
	return fmt.Sprintf("%032x", i)
}

func TestStore_CreateAndGetShare(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	share := newShare(testToken(1), int64Ptr(5), timePtr(testNow.Add(time.Hour)))
	require.NoError(t, store.CreateShare(ctx, share))
	assert.NotZero(t, share.ID)

	got, err := store.GetShareByToken(ctx, share.Token)
	require.NoError(t, err)
	assert.Equal(t, share.ID, got.ID)
	assert.Equal(t, domain.PermissionDownload, got.Permission)
	assert.True(t, got.Active)
	assert.Equal(t, int64(5), *got.MaxAccess)
	assert.True(t, got.ExpiresAt.Equal(testNow.Add(time.Hour)))
	assert.True(t, got.CreatedAt.Equal(testNow))
	assert.Nil(t, got.DeactivatedAt)

	byID, err := store.GetShareByID(ctx, share.ID)
	require.NoError(t, err)
	assert.Equal(t, share.Token, byID.Token)

	exists, err := store.TokenExists(ctx, share.Token)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.TokenExists(ctx, testToken(2))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_CreateShare_DuplicateToken(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.CreateShare(ctx, newShare(testToken(1), nil, nil)))
	err := store.CreateShare(ctx, newShare(testToken(1), nil, nil))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestStore_CreateShare_TruncatesToMillis(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	created := testNow.Add(123456789 * time.Nanosecond)
	expires := created.Add(time.Hour)
	share := newShare(testToken(1), nil, &expires)
	share.CreatedAt = created
	require.NoError(t, store.CreateShare(ctx, share))

	assert.Equal(t, testNow.Add(123*time.Millisecond), share.CreatedAt)
	assert.Equal(t, testNow.Add(time.Hour+123*time.Millisecond), *share.ExpiresAt)
	assert.Equal(t, created.Add(time.Hour), expires)

	got, err := store.GetShareByID(ctx, share.ID)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(share.CreatedAt))
	assert.True(t, got.ExpiresAt.Equal(*share.ExpiresAt))
}

func TestStore_GetShare_NotFound(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.GetShareByToken(ctx, testToken(99))
	assert.ErrorIs(t, err, domain.ErrShareNotFound)

	_, err = store.GetShareByID(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrShareNotFound)
}

func TestStore_ListSharesByOwner(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for i := 1; i <= 3; i++ {
		s := newShare(testToken(i), nil, nil)
		s.CreatedAt = testNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.CreateShare(ctx, s))
	}
	other := newShare(testToken(10), nil, nil)
	other.OwnerID = 8
	require.NoError(t, store.CreateShare(ctx, other))

	shares, err := store.ListSharesByOwner(ctx, 7)
	require.NoError(t, err)
	require.Len(t, shares, 3)
	assert.Equal(t, testToken(3), shares[0].Token)
	assert.Equal(t, testToken(1), shares[2].Token)
}

func TestStore_DeactivateShare(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	share := newShare(testToken(1), nil, nil)
	require.NoError(t, store.CreateShare(ctx, share))

	changed, err := store.DeactivateShare(ctx, share.ID, domain.DeactivationRevoked, testNow)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.DeactivateShare(ctx, share.ID, domain.DeactivationExpired, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := store.GetShareByID(ctx, share.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, domain.DeactivationRevoked, got.DeactivationReason)
	assert.True(t, got.DeactivatedAt.Equal(testNow))
}

func TestStore_RecordAccess_ExhaustsBudget(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	share := newShare(testToken(1), int64Ptr(2), nil)
	require.NoError(t, store.CreateShare(ctx, share))

	access := func() (*domain.Share, error) {
		return store.RecordAccess(ctx, &domain.ShareAccess{
			ShareID:    share.ID,
			AccessorIP: "10.0.0.1",
			UserAgent:  "curl/8",
			AccessedAt: testNow,
			AccessType: domain.AccessDownload,
		})
	}

	got, err := access()
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.AccessCount)
	assert.True(t, got.Active)

	got, err = access()
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
	assert.False(t, got.Active)
	assert.Equal(t, domain.DeactivationExhausted, got.DeactivationReason)

	_, err = access()
	assert.ErrorIs(t, err, domain.ErrAccessLimitReached)

	accesses, err := store.ListAccesses(ctx, share.ID, 10)
	require.NoError(t, err)
	assert.Len(t, accesses, 2)
}

func TestStore_RecordAccess_Refusals(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	expired := newShare(testToken(1), nil, timePtr(testNow.Add(-time.Minute)))
	require.NoError(t, store.CreateShare(ctx, expired))

	revoked := newShare(testToken(2), nil, nil)
	require.NoError(t, store.CreateShare(ctx, revoked))
	_, err := store.DeactivateShare(ctx, revoked.ID, domain.DeactivationRevoked, testNow)
	require.NoError(t, err)

	tests := []struct {
		name    string
		shareID int64
		wantErr error
	}{
		{"expired", expired.ID, domain.ErrShareExpired},
		{"revoked", revoked.ID, domain.ErrShareRevoked},
		{"missing", 9999, domain.ErrShareNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.RecordAccess(ctx, &domain.ShareAccess{
				ShareID:    tt.shareID,
				AccessedAt: testNow,
				AccessType: domain.AccessView,
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	got, err := store.GetShareByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Zero(t, got.AccessCount)
}

func TestStore_RecordAccess_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	share := newShare(testToken(1), nil, timePtr(testNow))
	require.NoError(t, store.CreateShare(ctx, share))

	_, err := store.RecordAccess(ctx, &domain.ShareAccess{ShareID: share.ID, AccessedAt: testNow, AccessType: domain.AccessView})
	require.NoError(t, err)

	_, err = store.RecordAccess(ctx, &domain.ShareAccess{ShareID: share.ID, AccessedAt: testNow.Add(time.Millisecond), AccessType: domain.AccessView})
	assert.ErrorIs(t, err, domain.ErrShareExpired)
}

func TestStore_RecordAccess_ConcurrentBudget(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	const (
		budget  = 5
		workers = 20
	)

	share := newShare(testToken(1), int64Ptr(budget), nil)
	require.NoError(t, store.CreateShare(ctx, share))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		refused   int
		other     []error
	)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := store.RecordAccess(ctx, &domain.ShareAccess{
				ShareID:    share.ID,
				AccessorIP: fmt.Sprintf("10.0.0.%d", i),
				AccessedAt: testNow,
				AccessType: domain.AccessDownload,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrAccessLimitReached):
				refused++
			default:
				other = append(other, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, budget, succeeded)
	assert.Equal(t, workers-budget, refused)

	got, err := store.GetShareByID(ctx, share.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(budget), got.AccessCount)
	assert.False(t, got.Active)

	accesses, err := store.ListAccesses(ctx, share.ID, 100)
	require.NoError(t, err)
	assert.Len(t, accesses, budget)
}

func TestStore_Sweeps(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	expired := newShare(testToken(1), nil, timePtr(testNow.Add(-time.Hour)))
	require.NoError(t, store.CreateShare(ctx, expired))

	fresh := newShare(testToken(2), nil, timePtr(testNow.Add(time.Hour)))
	require.NoError(t, store.CreateShare(ctx, fresh))

	// exhausted but still flagged active, as left behind by an interrupted write
	exhausted := newShare(testToken(3), int64Ptr(1), nil)
	exhausted.AccessCount = 1
	require.NoError(t, store.CreateShare(ctx, exhausted))

	n, err := store.SweepExpired(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.SweepExpired(ctx, testNow)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.SweepExhausted(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetShareByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeactivationExpired, got.DeactivationReason)

	got, err = store.GetShareByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	got, err = store.GetShareByID(ctx, exhausted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeactivationExhausted, got.DeactivationReason)
}

func TestStore_AccessStatsAndIPActivity(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	share := newShare(testToken(1), nil, nil)
	require.NoError(t, store.CreateShare(ctx, share))

	for i, ip := range []string{"10.0.0.1", "10.0.0.1", "10.0.0.2"} {
		accessType := domain.AccessView
		if i == 2 {
			accessType = domain.AccessDownload
		}
		_, err := store.RecordAccess(ctx, &domain.ShareAccess{
			ShareID:    share.ID,
			AccessorIP: ip,
			AccessedAt: testNow.Add(time.Duration(i) * time.Minute),
			AccessType: accessType,
		})
		require.NoError(t, err)
	}

	require.NoError(t, store.RecordDenial(ctx, &domain.ShareDenial{
		ShareID:     &share.ID,
		AccessorIP:  "10.0.0.1",
		AttemptedAt: testNow,
		AccessType:  domain.AccessDownload,
		Reason:      domain.DenialPermissionDenied,
	}))
	require.NoError(t, store.RecordDenial(ctx, &domain.ShareDenial{
		TokenHint:   "dead****beef",
		AccessorIP:  "10.0.0.9",
		AttemptedAt: testNow,
		AccessType:  domain.AccessView,
		Reason:      domain.DenialNotFound,
	}))

	stats, err := store.GetShareAccessStats(ctx, share.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Accesses.Views)
	assert.Equal(t, int64(1), stats.Accesses.Downloads)
	assert.Equal(t, int64(2), stats.UniqueIPs)
	assert.Equal(t, int64(1), stats.Denials)
	require.NotNil(t, stats.LastAccessedAt)
	assert.True(t, stats.LastAccessedAt.Equal(testNow.Add(2*time.Minute)))

	activity, err := store.GetIPActivity(ctx, testNow.Add(-time.Hour), 2, false)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, "10.0.0.1", activity[0].IP)
	assert.Equal(t, int64(2), activity[0].Accesses)
	assert.Equal(t, int64(1), activity[0].Denials)

	accessed, err := store.GetIPActivity(ctx, testNow.Add(-time.Hour), 1, false)
	require.NoError(t, err)
	assert.Len(t, accessed, 2)
	for _, a := range accessed {
		assert.NotEqual(t, "10.0.0.9", a.IP)
	}

	all, err := store.GetIPActivity(ctx, testNow.Add(-time.Hour), 1, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	counts, err := store.GetAccessCountsSince(ctx, testNow.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Views)
	assert.Equal(t, int64(1), counts.Downloads)

	shareCounts, err := store.GetShareCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), shareCounts.Total)
	assert.Equal(t, int64(1), shareCounts.Active)
}

func TestStore_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	share := newShare(testToken(1), nil, nil)
	require.NoError(t, store.CreateShare(ctx, share))

	old := testNow.Add(-100 * 24 * time.Hour)
	for _, at := range []time.Time{old, testNow} {
		_, err := store.RecordAccess(ctx, &domain.ShareAccess{ShareID: share.ID, AccessedAt: at, AccessType: domain.AccessView})
		require.NoError(t, err)
		require.NoError(t, store.RecordDenial(ctx, &domain.ShareDenial{AttemptedAt: at, AccessType: domain.AccessView, Reason: domain.DenialNotFound}))
	}

	n, err := store.DeleteAccessesBefore(ctx, testNow.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.DeleteDenialsBefore(ctx, testNow.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// the counter is not rewritten by retention
	got, err := store.GetShareByID(ctx, share.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
}

func TestStore_Notifications(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	share := newShare(testToken(1), nil, nil)
	require.NoError(t, store.CreateShare(ctx, share))

	for i, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		require.NoError(t, store.CreateNotification(ctx, &domain.ShareNotification{
			ShareID:        share.ID,
			NotificationID: fmt.Sprintf("n-%d", i),
			RecipientEmail: email,
			SentAt:         testNow.Add(-time.Duration(i) * 24 * time.Hour),
		}))
	}

	ok, err := store.MarkNotificationDelivered(ctx, "n-0", testNow)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkNotificationDelivered(ctx, "n-0", testNow)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.RecordNotificationFailure(ctx, "n-1", "connection refused"))

	pending, err := store.ListUndeliveredSince(ctx, testNow.Add(-36*time.Hour))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "n-1", pending[0].NotificationID)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, "connection refused", pending[0].LastError)

	stats, err := store.GetNotificationStats(ctx, share.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Sent)
	assert.Equal(t, int64(1), stats.Delivered)

	n, err := store.DeleteUndeliveredBefore(ctx, testNow.Add(-36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_Ping(t *testing.T) {
	store := openTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
