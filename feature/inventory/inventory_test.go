package inventory

import (
	"context"
	"sync"
	"testing"

	"card-inventory/core/database"
	"card-inventory/core/lock"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, Models()...))
	return NewService(db, lock.NewMemory(), zap.NewNop())
}

func seedCard(t *testing.T, svc *Service, shopID uint) *Card {
	t.Helper()
	card, _, err := svc.FindOrCreateCard(context.Background(), shopID, CardInput{
		Name:       "Lightning Bolt",
		SetName:    "Alpha",
		CardNumber: "161",
	})
	require.NoError(t, err)
	return card
}

func seedLot(t *testing.T, svc *Service, shopID uint, qty int) *Lot {
	t.Helper()
	card := seedCard(t, svc, shopID)
	lot, _, err := svc.CreateLot(context.Background(), CreateLotRequest{
		ShopID:    shopID,
		CardID:    card.ID,
		Condition: "NM",
		Location:  "Binder A",
		Quantity:  qty,
	})
	require.NoError(t, err)
	return lot
}

// requireFolds checks that replaying the lot's ledger yields its stored quantities.
func requireFolds(t *testing.T, svc *Service, lotID uint) {
	t.Helper()
	lot, err := svc.GetLotByID(context.Background(), lotID)
	require.NoError(t, err)
	events, err := svc.LotEvents(context.Background(), lotID)
	require.NoError(t, err)

	available, reserved := 0, 0
	for i, ev := range events {
		require.Equal(t, uint64(i+1), ev.Sequence, "sequence must be contiguous")
		available += ev.QuantityDelta
		reserved += ev.ReservedDelta
		require.Equal(t, available, ev.ResultingQuantity)
	}
	require.Equal(t, available, lot.QuantityAvailable)
	require.Equal(t, reserved, lot.QuantityReserved)
	require.Equal(t, uint64(len(events)), lot.LedgerVersion)
}

type recordingListener struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingListener) QuantityChanged(_ context.Context, _ Lot, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingListener) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func strPtr(s string) *string { return &s }
