package channels

import (
	"context"
	"sync"
	"testing"
	"time"

	"card-inventory/core/apperr"
	"card-inventory/core/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSyncState_CanTransition(t *testing.T) {
	cases := []struct {
		from, to SyncState
		ok       bool
	}{
		{SyncPending, SyncSynced, true},
		{SyncPending, SyncError, true},
		{SyncSynced, SyncPending, true},
		{SyncError, SyncPending, true},
		{SyncSynced, SyncError, false},
		{SyncError, SyncSynced, false},
		{SyncSynced, SyncDelisted, true},
		{SyncDelisted, SyncPending, false},
		{SyncDelisted, SyncSynced, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSyncConfig_Backoff(t *testing.T) {
	cfg := SyncConfig{BaseBackoff: 30 * time.Second, MaxBackoff: 5 * time.Minute}
	assert.Equal(t, 30*time.Second, cfg.Backoff(1))
	assert.Equal(t, 60*time.Second, cfg.Backoff(2))
	assert.Equal(t, 4*time.Minute, cfg.Backoff(4))
	assert.Equal(t, 5*time.Minute, cfg.Backoff(5))
	assert.Equal(t, 5*time.Minute, cfg.Backoff(40))
}

func TestPushQuantity_Success(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 4)
	listing := f.link(t, lot, "ext-1")
	assert.Equal(t, SyncPending, listing.SyncState)

	got, err := f.svc.PushQuantity(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, SyncSynced, got.SyncState)
	assert.Equal(t, 4, got.ListedQuantity)
	assert.NotNil(t, got.LastSyncedAt)
	assert.Zero(t, got.Attempts)

	qty, ok := f.channel.Quantity("ext-1")
	require.True(t, ok)
	assert.Equal(t, 4, qty)

	jobs, err := f.svc.ListSyncJobs(context.Background(), testShop, listing.ID, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, JobSuccess, jobs[0].Status)
	assert.Equal(t, DirectionOutbound, jobs[0].Direction)
}

func TestPushQuantity_FailureSchedulesRetry(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 4)
	listing := f.link(t, lot, "ext-1")
	f.channel.FailNext("update", 2)

	before := time.Now()
	_, err := f.svc.PushQuantity(context.Background(), listing.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExternalChannel))

	got, err := f.svc.GetListing(context.Background(), testShop, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, SyncError, got.SyncState)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.LastError(), "injected update failure")
	require.NotNil(t, got.NextRetryAt)
	assert.WithinDuration(t, before.Add(f.svc.cfg.Backoff(1)), *got.NextRetryAt, 5*time.Second)

	_, err = f.svc.PushQuantity(context.Background(), listing.ID)
	require.Error(t, err)
	got, err = f.svc.GetListing(context.Background(), testShop, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	assert.WithinDuration(t, before.Add(f.svc.cfg.Backoff(2)), *got.NextRetryAt, 5*time.Second)

	got, err = f.svc.PushQuantity(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, SyncSynced, got.SyncState)
	assert.Zero(t, got.Attempts)
	assert.Nil(t, got.NextRetryAt)
	assert.Empty(t, got.LastError())
}

func TestPushQuantity_PersistsOutcomeAndMetadata(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 6)
	listing := f.link(t, lot, "ext-1")
	require.NoError(t, f.db.Model(&Listing{}).Where("id = ?", listing.ID).
		Select("metadata").Updates(&Listing{Metadata: map[string]any{"title": "Alpha Lotus"}}).Error)

	f.channel.FailNext("update", 1)
	_, err := f.svc.PushQuantity(context.Background(), listing.ID)
	require.Error(t, err)

	var stored Listing
	require.NoError(t, f.db.First(&stored, listing.ID).Error)
	assert.Equal(t, SyncError, stored.SyncState)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "Alpha Lotus", stored.Metadata["title"])
	assert.Contains(t, stored.LastError(), "injected update failure")

	_, err = f.svc.PushQuantity(context.Background(), listing.ID)
	require.NoError(t, err)

	stored = Listing{}
	require.NoError(t, f.db.First(&stored, listing.ID).Error)
	assert.Equal(t, SyncSynced, stored.SyncState)
	assert.Equal(t, 6, stored.ListedQuantity)
	require.NotNil(t, stored.LastSyncedAt)
	assert.Nil(t, stored.NextRetryAt)
	assert.Equal(t, "Alpha Lotus", stored.Metadata["title"])
	assert.NotContains(t, stored.Metadata, "last_error")
}

func TestPushQuantity_DelistedIsTerminal(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 4)
	listing := f.link(t, lot, "ext-1")

	delisted, err := f.svc.Delist(context.Background(), testShop, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, SyncDelisted, delisted.SyncState)

	_, err = f.svc.PushQuantity(context.Background(), listing.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Zero(t, f.channel.Updates())

	again, err := f.svc.Delist(context.Background(), testShop, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, SyncDelisted, again.SyncState)

	_, err = f.svc.UpdateListing(context.Background(), testShop, listing.ID, ListingUpdate{})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestPushQuantity_InactiveIntegration(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 4)
	listing := f.link(t, lot, "ext-1")
	_, err := f.svc.Disconnect(context.Background(), testShop, f.integ.ID)
	require.NoError(t, err)

	_, err = f.svc.PushQuantity(context.Background(), listing.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	got, err := f.svc.GetListing(context.Background(), testShop, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, SyncPending, got.SyncState)
	assert.Zero(t, got.Attempts)
}

func TestPushQuantity_CoalescesConcurrentPushes(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 4)
	listing := f.link(t, lot, "ext-1")
	f.channel.SetDelay(200 * time.Millisecond)

	const callers = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.PushQuantity(context.Background(), listing.ID)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, f.channel.Updates())
}

func TestLink_OneActiveListingPerIntegration(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 4)
	listing := f.link(t, lot, "ext-1")

	_, err := f.svc.Link(context.Background(), LinkRequest{
		ShopID: testShop, IntegrationID: f.integ.ID, LotID: lot.ID, ExternalListingID: "ext-2",
	})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	_, err = f.svc.Delist(context.Background(), testShop, listing.ID)
	require.NoError(t, err)
	relisted := f.link(t, lot, "ext-2")
	assert.Equal(t, "BL-1", relisted.ExternalSKU)

	count, err := f.svc.ActiveListingCount(context.Background(), lot.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLink_UnknownLotAndIntegration(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 4)

	_, err := f.svc.Link(context.Background(), LinkRequest{
		ShopID: testShop, IntegrationID: f.integ.ID, LotID: 999, ExternalListingID: "ext-1",
	})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = f.svc.Link(context.Background(), LinkRequest{
		ShopID: 2, IntegrationID: f.integ.ID, LotID: lot.ID, ExternalListingID: "ext-1",
	})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestRetirementBlockedByActiveListing(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 0)
	listing := f.link(t, lot, "ext-1")

	_, err := f.inv.RetireLot(context.Background(), testShop, lot.ID, f.svc)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	_, err = f.svc.Delist(context.Background(), testShop, listing.ID)
	require.NoError(t, err)
	retired, err := f.inv.RetireLot(context.Background(), testShop, lot.ID, f.svc)
	require.NoError(t, err)
	assert.True(t, retired.Retired())
}

func TestQuantityChanged_PushesThroughQueue(t *testing.T) {
	f := setup(t, worker.Inline{Ctx: context.Background(), Log: zap.NewNop()})
	f.inv.AddListener(f.svc)

	lot := f.lot(t, "BL-1", 4)
	listing := f.link(t, lot, "ext-1")
	qty, _ := f.channel.Quantity("ext-1")
	assert.Equal(t, 4, qty)

	f.adjust(t, lot.ID, -3)

	qty, _ = f.channel.Quantity("ext-1")
	assert.Equal(t, 1, qty)
	got, err := f.svc.GetListing(context.Background(), testShop, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, SyncSynced, got.SyncState)
	assert.Equal(t, 1, got.ListedQuantity)
	assert.Equal(t, 2, f.channel.Updates())
}

func TestRetrySweep(t *testing.T) {
	f := setup(t, nil)
	failing := f.link(t, f.lot(t, "BL-1", 4), "ext-1")
	fresh := f.link(t, f.lot(t, "BL-2", 2), "ext-2")

	f.channel.FailNext("update", 1)
	_, err := f.svc.PushQuantity(context.Background(), failing.ID)
	require.Error(t, err)

	// Neither the retry time nor the staleness window has passed.
	report, err := f.svc.RetrySweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Candidates)

	f.shiftClock(time.Hour)
	report, err = f.svc.RetrySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &SweepReport{Candidates: 2, Synced: 2}, report)

	for _, id := range []uint{failing.ID, fresh.ID} {
		got, err := f.svc.GetListing(context.Background(), testShop, id)
		require.NoError(t, err)
		assert.Equal(t, SyncSynced, got.SyncState)
	}
}

func TestRetrySweep_StopsAfterMaxAttempts(t *testing.T) {
	f := setup(t, nil)
	f.svc.cfg.MaxAttempts = 2
	listing := f.link(t, f.lot(t, "BL-1", 4), "ext-1")

	f.channel.FailNext("update", 10)
	for range 2 {
		_, err := f.svc.PushQuantity(context.Background(), listing.ID)
		require.Error(t, err)
	}

	f.shiftClock(24 * time.Hour)
	report, err := f.svc.RetrySweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Candidates)

	// Reactivating the integration gives exhausted listings a fresh budget.
	_, err = f.svc.Activate(context.Background(), testShop, f.integ.ID, ActivateRequest{AccessToken: "again", RefreshToken: "refresh", ExpiresIn: 3600 * 48})
	require.NoError(t, err)
	f.channel.FailNext("update", 0)
	report, err = f.svc.RetrySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
}

func TestUpdateListing(t *testing.T) {
	f := setup(t, nil)
	listing := f.link(t, f.lot(t, "BL-1", 4), "ext-1")

	title := "Black Lotus NM"
	got, err := f.svc.UpdateListing(context.Background(), testShop, listing.ID, ListingUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, SyncPending, got.SyncState)
}
