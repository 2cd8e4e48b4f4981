package replay

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nordpool-dataplane/internal/model"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func tick(order, side string, typ model.TickType, price, remaining int64, at time.Time, rev int64) model.Tick {
	return model.Tick{
		TickID:          order + "-" + at.Format("150405") + "-" + string(typ),
		ContractID:      "NX_1",
		DeliveryArea:    "SE3",
		OrderID:         order,
		Side:            side,
		Price:           decimal.NewFromInt(price),
		RemainingVolume: decimal.NewFromInt(remaining),
		UpdatedTime:     at,
		Type:            typ,
		RevisionNumber:  rev,
		IsDeleted:       typ == model.TickCancel,
	}
}

func TestBookAt_LifecycleOfOneOrder(t *testing.T) {
	ticks := []model.Tick{
		tick("O1", model.SideBuy, model.TickNew, 40, 10, base, 1),
		tick("O1", model.SideBuy, model.TickTrade, 40, 4, base.Add(time.Minute), 2),
		tick("O1", model.SideBuy, model.TickUpdate, 40, 7, base.Add(2*time.Minute), 3),
		tick("O1", model.SideBuy, model.TickTrade, 40, 0, base.Add(3*time.Minute), 4),
	}

	// After the partial fill.
	book := BookAt("NX_1", "SE3", ticks, base.Add(time.Minute))
	if len(book.Bids) != 1 || !book.Bids[0].Volume.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("after fill: bids = %v", book.Bids)
	}

	// After the volume increase: the update's remaining wins.
	book = BookAt("NX_1", "SE3", ticks, base.Add(2*time.Minute))
	if len(book.Bids) != 1 || !book.Bids[0].Volume.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("after update: bids = %v", book.Bids)
	}

	// After the full execution the order is gone.
	book = BookAt("NX_1", "SE3", ticks, base.Add(3*time.Minute))
	if len(book.Bids) != 0 {
		t.Fatalf("after full fill: bids = %v", book.Bids)
	}
	if book.IsNative {
		t.Error("replayed snapshot must not be marked native")
	}
}

func TestBookAt_CancelRemovesOrder(t *testing.T) {
	ticks := []model.Tick{
		tick("O1", model.SideSell, model.TickNew, 45, 5, base, 1),
		tick("O1", model.SideSell, model.TickCancel, 45, 5, base.Add(time.Minute), 2),
	}
	book := BookAt("NX_1", "SE3", ticks, base.Add(time.Hour))
	if len(book.Asks) != 0 {
		t.Fatalf("cancelled order still in book: %v", book.Asks)
	}
}

func TestBookAt_PriceAndPriorityOrdering(t *testing.T) {
	p1 := base.Add(-2 * time.Hour)
	p2 := base.Add(-1 * time.Hour)

	ticks := []model.Tick{
		tick("B-low", model.SideBuy, model.TickNew, 40, 1, base, 1),
		tick("B-high", model.SideBuy, model.TickNew, 42, 1, base, 2),
		tick("A-high", model.SideSell, model.TickNew, 46, 1, base, 3),
		tick("A-low", model.SideSell, model.TickNew, 44, 1, base, 4),
	}
	// Same price, different priority: older priority ranks first.
	first := tick("B-old", model.SideBuy, model.TickNew, 41, 1, base, 5)
	first.PriorityTime = p1
	second := tick("B-new", model.SideBuy, model.TickNew, 41, 1, base, 6)
	second.PriorityTime = p2
	ticks = append(ticks, second, first)

	book := BookAt("NX_1", "SE3", ticks, base.Add(time.Minute))

	wantBids := []string{"B-high", "B-old", "B-new", "B-low"}
	if len(book.Bids) != len(wantBids) {
		t.Fatalf("bids = %d, want %d", len(book.Bids), len(wantBids))
	}
	for i, want := range wantBids {
		if book.Bids[i].OrderID != want {
			t.Errorf("bid %d = %s, want %s", i, book.Bids[i].OrderID, want)
		}
	}
	if book.Asks[0].OrderID != "A-low" || book.Asks[1].OrderID != "A-high" {
		t.Errorf("asks out of order: %s, %s", book.Asks[0].OrderID, book.Asks[1].OrderID)
	}
}

func TestBookAt_Deterministic(t *testing.T) {
	ticks := []model.Tick{
		tick("O1", model.SideBuy, model.TickNew, 40, 3, base, 1),
		tick("O2", model.SideSell, model.TickNew, 44, 2, base.Add(time.Second), 2),
		tick("O1", model.SideBuy, model.TickTrade, 40, 1, base.Add(2*time.Second), 3),
	}
	// Reversed input order must fold to the same book.
	reversed := []model.Tick{ticks[2], ticks[1], ticks[0]}

	a := BookAt("NX_1", "SE3", ticks, base.Add(time.Minute))
	b := BookAt("NX_1", "SE3", reversed, base.Add(time.Minute))

	if len(a.Bids) != len(b.Bids) || len(a.Asks) != len(b.Asks) {
		t.Fatalf("shape differs: %d/%d vs %d/%d", len(a.Bids), len(a.Asks), len(b.Bids), len(b.Asks))
	}
	for i := range a.Bids {
		if a.Bids[i].OrderID != b.Bids[i].OrderID || !a.Bids[i].Volume.Equal(b.Bids[i].Volume) {
			t.Errorf("bid %d differs: %+v vs %+v", i, a.Bids[i], b.Bids[i])
		}
	}
}

func TestBookAt_TieBrokenByRevision(t *testing.T) {
	// Same updated_time: the higher revision is the later event.
	at := base
	ticks := []model.Tick{
		tick("O1", model.SideBuy, model.TickUpdate, 40, 9, at, 2),
		tick("O1", model.SideBuy, model.TickNew, 40, 5, at, 1),
	}
	book := BookAt("NX_1", "SE3", ticks, at)
	if len(book.Bids) != 1 || !book.Bids[0].Volume.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("revision tie-break wrong: %v", book.Bids)
	}
}

func TestBookAt_IgnoresFutureTicks(t *testing.T) {
	ticks := []model.Tick{
		tick("O1", model.SideBuy, model.TickNew, 40, 5, base, 1),
		tick("O1", model.SideBuy, model.TickCancel, 40, 5, base.Add(time.Hour), 2),
	}
	book := BookAt("NX_1", "SE3", ticks, base.Add(time.Minute))
	if len(book.Bids) != 1 {
		t.Fatalf("future cancel applied too early: %v", book.Bids)
	}
}
