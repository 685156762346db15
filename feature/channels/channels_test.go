package channels

import (
	"context"
	"testing"
	"time"

	"card-inventory/core/database"
	"card-inventory/core/lock"
	"card-inventory/core/worker"
	"card-inventory/feature/channels/provider"
	"card-inventory/feature/channels/provider/memory"
	"card-inventory/feature/inventory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testShop uint = 1

type fixture struct {
	db      *gorm.DB
	inv     *inventory.Service
	svc     *Service
	channel *memory.Provider
	integ   *Integration
}

// setup wires an inventory and a channels service over one in-memory database
// with an active sandbox integration. A nil queue leaves pushes to the caller.
func setup(t *testing.T, queue worker.Enqueuer) *fixture {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	models := append(inventory.Models(), Models()...)
	require.NoError(t, database.Migrate(db, models...))

	inv := inventory.NewService(db, lock.NewMemory(), zap.NewNop())
	channel := memory.New()
	sealer, err := RandomSealer()
	require.NoError(t, err)
	svc := NewService(SyncConfig{}, db, inv, queue, provider.NewRegistry(channel), sealer, zap.NewNop())

	ctx := context.Background()
	integ, err := svc.CreateIntegration(ctx, testShop, memory.Name)
	require.NoError(t, err)
	integ, err = svc.Activate(ctx, testShop, integ.ID, ActivateRequest{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresIn:    3600,
	})
	require.NoError(t, err)

	return &fixture{db: db, inv: inv, svc: svc, channel: channel, integ: integ}
}

func (f *fixture) lot(t *testing.T, sku string, qty int) *inventory.Lot {
	t.Helper()
	card, _, err := f.inv.FindOrCreateCard(context.Background(), testShop, inventory.CardInput{
		Name:       "Black Lotus",
		SetName:    "Alpha",
		CardNumber: "232",
	})
	require.NoError(t, err)
	lot, _, err := f.inv.CreateLot(context.Background(), inventory.CreateLotRequest{
		ShopID:    testShop,
		CardID:    card.ID,
		SKU:       sku,
		Condition: "NM",
		Quantity:  qty,
	})
	require.NoError(t, err)
	return lot
}

func (f *fixture) link(t *testing.T, lot *inventory.Lot, externalID string) *Listing {
	t.Helper()
	listing, err := f.svc.Link(context.Background(), LinkRequest{
		ShopID:            testShop,
		IntegrationID:     f.integ.ID,
		LotID:             lot.ID,
		ExternalListingID: externalID,
	})
	require.NoError(t, err)
	return listing
}

func (f *fixture) adjust(t *testing.T, lotID uint, delta int) {
	t.Helper()
	_, _, err := f.inv.Adjust(context.Background(), inventory.AdjustRequest{
		ShopID:    testShop,
		LotID:     lotID,
		Delta:     delta,
		EventType: inventory.EventAdjustment,
	})
	require.NoError(t, err)
}

func (f *fixture) shiftClock(d time.Duration) {
	f.svc.now = func() time.Time { return time.Now().Add(d) }
}
