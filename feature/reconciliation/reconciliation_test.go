package reconciliation

import (
	"context"
	"sync"
	"testing"

	"card-inventory/core/apperr"
	"card-inventory/core/database"
	"card-inventory/core/lock"
	"card-inventory/feature/channels"
	"card-inventory/feature/channels/provider"
	"card-inventory/feature/channels/provider/memory"
	"card-inventory/feature/inventory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testShop uint = 1

type fixture struct {
	inv     *inventory.Service
	ch      *channels.Service
	svc     *Service
	channel *memory.Provider
	integ   *channels.Integration
}

func setup(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	models := append(inventory.Models(), channels.Models()...)
	models = append(models, Models()...)
	require.NoError(t, database.Migrate(db, models...))

	inv := inventory.NewService(db, lock.NewMemory(), zap.NewNop())
	channel := memory.New()
	sealer, err := channels.RandomSealer()
	require.NoError(t, err)
	ch := channels.NewService(channels.SyncConfig{}, db, inv, nil, provider.NewRegistry(channel), sealer, zap.NewNop())

	ctx := context.Background()
	integ, err := ch.CreateIntegration(ctx, testShop, memory.Name)
	require.NoError(t, err)
	integ, err = ch.Activate(ctx, testShop, integ.ID, channels.ActivateRequest{AccessToken: "a", RefreshToken: "r", ExpiresIn: 3600})
	require.NoError(t, err)

	return &fixture{
		inv:     inv,
		ch:      ch,
		svc:     NewService(cfg, db, inv, ch, zap.NewNop()),
		channel: channel,
		integ:   integ,
	}
}

// syncedListing creates a lot of qty and a listing pushed to the channel.
func (f *fixture) syncedListing(t *testing.T, sku, externalID string, qty int) (*inventory.Lot, *channels.Listing) {
	t.Helper()
	ctx := context.Background()
	card, _, err := f.inv.FindOrCreateCard(ctx, testShop, inventory.CardInput{Name: "Sol Ring", SetName: "Alpha", CardNumber: "270"})
	require.NoError(t, err)
	lot, _, err := f.inv.CreateLot(ctx, inventory.CreateLotRequest{ShopID: testShop, CardID: card.ID, SKU: sku, Condition: "NM", Quantity: qty})
	require.NoError(t, err)
	listing, err := f.ch.Link(ctx, channels.LinkRequest{ShopID: testShop, IntegrationID: f.integ.ID, LotID: lot.ID, ExternalListingID: externalID})
	require.NoError(t, err)
	listing, err = f.ch.PushQuantity(ctx, listing.ID)
	require.NoError(t, err)
	return lot, listing
}

func (f *fixture) adjust(t *testing.T, lotID uint, delta int) {
	t.Helper()
	_, _, err := f.inv.Adjust(context.Background(), inventory.AdjustRequest{
		ShopID: testShop, LotID: lotID, Delta: delta, EventType: inventory.EventAdjustment,
	})
	require.NoError(t, err)
}

func (f *fixture) pending(t *testing.T) []Mismatch {
	t.Helper()
	out, _, err := f.svc.ListMismatches(context.Background(), testShop, Filter{Status: StatusPending})
	require.NoError(t, err)
	return out
}

func TestScanThenPushInternal(t *testing.T) {
	f := setup(t, Config{})
	ctx := context.Background()
	lot, listing := f.syncedListing(t, "SR-1", "ext-1", 5)
	assert.Equal(t, 5, listing.ListedQuantity)

	f.adjust(t, lot.ID, 3)

	report, err := f.svc.ScanForMismatches(ctx, testShop)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Listings)
	assert.Equal(t, 1, report.Diverged)
	assert.Equal(t, 1, report.Created)

	pending := f.pending(t)
	require.Len(t, pending, 1)
	m := pending[0]
	assert.Equal(t, 8, m.InternalQuantity)
	assert.Equal(t, 5, m.ChannelQuantity)
	assert.Equal(t, 5, m.ListedQuantity)
	assert.Equal(t, StatusPushInternal, m.SuggestedResolution)
	assert.Equal(t, listing.ID, m.ListingID)

	// A second scan does not duplicate the pending mismatch.
	report, err = f.svc.ScanForMismatches(ctx, testShop)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Diverged)
	assert.Zero(t, report.Created)

	actor := "operator"
	resolved, err := f.svc.Resolve(ctx, ResolveRequest{ShopID: testShop, MismatchID: m.ID, Resolution: StatusPushInternal, Actor: &actor})
	require.NoError(t, err)
	assert.Equal(t, StatusPushInternal, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, actor, *resolved.ResolvedBy)
	assert.NotNil(t, resolved.ResolvedAt)

	qty, _ := f.channel.Quantity("ext-1")
	assert.Equal(t, 8, qty)
	got, err := f.ch.GetListing(ctx, testShop, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.ListedQuantity)
	assert.Equal(t, channels.SyncSynced, got.SyncState)

	_, err = f.svc.Resolve(ctx, ResolveRequest{ShopID: testShop, MismatchID: m.ID, Resolution: StatusIgnore})
	assert.ErrorIs(t, err, apperr.ErrAlreadyResolved)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// After the resolution the listing may raise a new mismatch.
	f.adjust(t, lot.ID, -1)
	report, err = f.svc.ScanForMismatches(ctx, testShop)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
}

func TestScan_ConcurrentScansRaiseOnce(t *testing.T) {
	f := setup(t, Config{})
	lot, _ := f.syncedListing(t, "SR-1", "ext-1", 5)
	f.adjust(t, lot.ID, 2)

	const scans = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for range scans {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.svc.ScanForMismatches(context.Background(), testShop)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			created += r.Created
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, f.pending(t), 1)
}

func TestResolve_IgnoreHasNoSideEffects(t *testing.T) {
	f := setup(t, Config{})
	ctx := context.Background()
	lot, listing := f.syncedListing(t, "SR-1", "ext-1", 5)
	f.adjust(t, lot.ID, 3)
	_, err := f.svc.ScanForMismatches(ctx, testShop)
	require.NoError(t, err)
	m := f.pending(t)[0]

	lotBefore, err := f.inv.GetLotByID(ctx, lot.ID)
	require.NoError(t, err)
	eventsBefore, err := f.inv.LotEvents(ctx, lot.ID)
	require.NoError(t, err)
	listingBefore, err := f.ch.GetListing(ctx, testShop, listing.ID)
	require.NoError(t, err)
	updatesBefore := f.channel.Updates()

	resolved, err := f.svc.Resolve(ctx, ResolveRequest{ShopID: testShop, MismatchID: m.ID, Resolution: StatusIgnore, Notes: "counted by hand"})
	require.NoError(t, err)
	assert.Equal(t, StatusIgnore, resolved.Status)
	assert.Equal(t, "counted by hand", resolved.Notes)
	assert.Nil(t, resolved.ResolvedBy)

	lotAfter, err := f.inv.GetLotByID(ctx, lot.ID)
	require.NoError(t, err)
	eventsAfter, err := f.inv.LotEvents(ctx, lot.ID)
	require.NoError(t, err)
	listingAfter, err := f.ch.GetListing(ctx, testShop, listing.ID)
	require.NoError(t, err)

	assert.Equal(t, lotBefore.QuantityAvailable, lotAfter.QuantityAvailable)
	assert.Equal(t, lotBefore.LedgerVersion, lotAfter.LedgerVersion)
	assert.Len(t, eventsAfter, len(eventsBefore))
	assert.Equal(t, listingBefore.SyncState, listingAfter.SyncState)
	assert.Equal(t, listingBefore.ListedQuantity, listingAfter.ListedQuantity)
	assert.Equal(t, updatesBefore, f.channel.Updates())
}

func TestResolve_PullChannel(t *testing.T) {
	f := setup(t, Config{})
	ctx := context.Background()
	lot, _ := f.syncedListing(t, "SR-1", "ext-1", 5)
	f.adjust(t, lot.ID, 3)
	_, err := f.svc.ScanForMismatches(ctx, testShop)
	require.NoError(t, err)
	m := f.pending(t)[0]

	resolved, err := f.svc.Resolve(ctx, ResolveRequest{ShopID: testShop, MismatchID: m.ID, Resolution: StatusPullChannel})
	require.NoError(t, err)
	assert.Equal(t, StatusPullChannel, resolved.Status)

	after, err := f.inv.GetLotByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, after.QuantityAvailable)

	events, err := f.inv.LotEvents(ctx, lot.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, inventory.EventAdjustment, last.EventType)
	assert.Equal(t, -3, last.QuantityDelta)
	assert.Contains(t, last.Reason, "mismatch #")
}

func TestResolve_PullChannelWithoutDelta(t *testing.T) {
	f := setup(t, Config{})
	ctx := context.Background()
	lot, _ := f.syncedListing(t, "SR-1", "ext-1", 5)
	f.adjust(t, lot.ID, 3)
	_, err := f.svc.ScanForMismatches(ctx, testShop)
	require.NoError(t, err)
	m := f.pending(t)[0]

	// The lot came back to the channel quantity on its own.
	f.adjust(t, lot.ID, -3)
	before, err := f.inv.LotEvents(ctx, lot.ID)
	require.NoError(t, err)

	resolved, err := f.svc.Resolve(ctx, ResolveRequest{ShopID: testShop, MismatchID: m.ID, Resolution: StatusPullChannel})
	require.NoError(t, err)
	assert.Equal(t, StatusPullChannel, resolved.Status)

	after, err := f.inv.LotEvents(ctx, lot.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestResolve_PushFailureLeavesPending(t *testing.T) {
	f := setup(t, Config{})
	ctx := context.Background()
	lot, _ := f.syncedListing(t, "SR-1", "ext-1", 5)
	f.adjust(t, lot.ID, 3)
	_, err := f.svc.ScanForMismatches(ctx, testShop)
	require.NoError(t, err)
	m := f.pending(t)[0]

	f.channel.FailNext("update", 1)
	_, err = f.svc.Resolve(ctx, ResolveRequest{ShopID: testShop, MismatchID: m.ID, Resolution: StatusPushInternal})
	assert.True(t, apperr.IsKind(err, apperr.KindExternalChannel))

	still, err := f.svc.GetMismatch(ctx, testShop, m.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, still.Status)

	_, err = f.svc.Resolve(ctx, ResolveRequest{ShopID: testShop, MismatchID: m.ID, Resolution: StatusPushInternal})
	require.NoError(t, err)
}

func TestResolve_Validation(t *testing.T) {
	f := setup(t, Config{})
	_, err := f.svc.Resolve(context.Background(), ResolveRequest{ShopID: testShop, MismatchID: 1, Resolution: "shrug"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.Resolve(context.Background(), ResolveRequest{ShopID: testShop, MismatchID: 99, Resolution: StatusIgnore})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestScan_PollFailureAndMissingListing(t *testing.T) {
	f := setup(t, Config{RaiseMissing: true})
	ctx := context.Background()
	lot, _ := f.syncedListing(t, "SR-1", "ext-1", 5)
	f.adjust(t, lot.ID, 1)

	// A listing whose first push failed is unknown to the channel.
	card, _, err := f.inv.FindOrCreateCard(ctx, testShop, inventory.CardInput{Name: "Mox Pearl", SetName: "Alpha"})
	require.NoError(t, err)
	other, _, err := f.inv.CreateLot(ctx, inventory.CreateLotRequest{ShopID: testShop, CardID: card.ID, SKU: "MP-1", Condition: "LP", Quantity: 2})
	require.NoError(t, err)
	missing, err := f.ch.Link(ctx, channels.LinkRequest{ShopID: testShop, IntegrationID: f.integ.ID, LotID: other.ID, ExternalListingID: "ext-2"})
	require.NoError(t, err)
	f.channel.FailNext("update", 1)
	_, err = f.ch.PushQuantity(ctx, missing.ID)
	require.Error(t, err)

	plan, err := f.svc.Plan(ctx, testShop)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Summary.TotalItems)
	assert.Equal(t, 1, plan.Summary.ChannelMissing)
	assert.Equal(t, 2, plan.Summary.RaiseActions)
	assert.Empty(t, f.pending(t))

	f.channel.FailNext("get", 1)
	report, err := f.svc.ScanForMismatches(ctx, testShop)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PollFailures)
	assert.Equal(t, 1, report.Created)

	report, err = f.svc.ScanForMismatches(ctx, testShop)
	require.NoError(t, err)
	assert.Zero(t, report.PollFailures)
	assert.Equal(t, 1, report.Created)

	pending := f.pending(t)
	require.Len(t, pending, 2)
	var raisedMissing *Mismatch
	for i := range pending {
		if pending[i].ListingID == missing.ID {
			raisedMissing = &pending[i]
		}
	}
	require.NotNil(t, raisedMissing)
	assert.True(t, raisedMissing.ChannelMissing)
	assert.Zero(t, raisedMissing.ChannelQuantity)
}

func TestScan_AutoResolvePolicy(t *testing.T) {
	f := setup(t, Config{AutoResolve: PolicyPushInternal})
	ctx := context.Background()
	lot, _ := f.syncedListing(t, "SR-1", "ext-1", 5)
	f.adjust(t, lot.ID, 4)

	report, err := f.svc.ScanForMismatches(ctx, testShop)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.AutoResolved)
	assert.Empty(t, f.pending(t))

	qty, _ := f.channel.Quantity("ext-1")
	assert.Equal(t, 9, qty)

	all, total, err := f.svc.ListMismatches(ctx, testShop, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, StatusPushInternal, all[0].Status)
	assert.Contains(t, all[0].Notes, "auto-resolved")
}

func TestScanAll(t *testing.T) {
	f := setup(t, Config{})
	lot, _ := f.syncedListing(t, "SR-1", "ext-1", 5)
	f.adjust(t, lot.ID, 1)

	reports, err := f.svc.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, testShop, reports[0].ShopID)
	assert.Equal(t, 1, reports[0].Created)
}
