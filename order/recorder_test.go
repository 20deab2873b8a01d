package order

import (
	"strings"
	"testing"
)

// prefixResolver 以 IF 开头归多头席位、IC 开头归空头席位。
type prefixResolver struct{}

func (prefixResolver) ResolveDirection(instrument string) (Direction, bool) {
	switch {
	case strings.HasPrefix(instrument, "IF"):
		return DirectionLong, true
	case strings.HasPrefix(instrument, "IC"):
		return DirectionShort, true
	default:
		return "", false
	}
}

func newTestRecorder() (*Recorder, *APIManager) {
	api := NewAPIManager(&mockSnapshotAPI{}, &noopLimiter{})
	return NewRecorder(NewStorage(), api, prefixResolver{}), api
}

func filledRaw(id, instrument string, side Side, price, qty float64, at int64) RawOrder {
	return RawOrder{
		OrderID:     id,
		Instrument:  instrument,
		Side:        side,
		Status:      StatusFilled,
		Price:       price,
		Quantity:    qty,
		ExecutedQty: qty,
		AvgPrice:    price,
		UpdatedAtMs: at,
	}
}

func TestLoadFromOrdersRebuildsLedger(t *testing.T) {
	r, api := newTestRecorder()
	all := []RawOrder{
		filledRaw("o1", "IF2609", SideBuy, 10, 100, 1000),
		filledRaw("o2", "IF2609", SideBuy, 12, 100, 2000),
		filledRaw("o3", "IF2609", SideSell, 11, 100, 3000),
		raw("o4", StatusNew, 4000), // 未成交，不进台账
		filledRaw("o5", "XX9999", SideBuy, 5, 10, 5000),
	}

	res := r.LoadFromOrders(all)
	if res.Loaded != 3 {
		t.Fatalf("loaded = %d, want 3", res.Loaded)
	}
	if res.Unmatched != 1 || len(res.Samples) != 1 || res.Samples[0] != "XX9999" {
		t.Fatalf("unmatched = %d samples %v, want 1/[XX9999]", res.Unmatched, res.Samples)
	}

	open := r.OpenLots("IF2609", DirectionLong)
	if len(open) != 1 || open[0].Price != 12 {
		t.Fatalf("open = %v, want single lot priced 12", open)
	}
	if _, ok := api.OrdersForInstrument("IF2609"); !ok {
		t.Fatal("instrument cache not seeded after load")
	}
}

func TestCostBasis(t *testing.T) {
	r, _ := newTestRecorder()
	r.RecordBuyFill(DirectionLong, buy("b1", 10, 100, 1000))
	r.RecordBuyFill(DirectionLong, buy("b2", 20, 300, 2000))

	avg, qty := r.CostBasis("IF2609", DirectionLong)
	if qty != 400 {
		t.Fatalf("qty = %.0f, want 400", qty)
	}
	want := (10.0*100 + 20.0*300) / 400
	if avg != want {
		t.Fatalf("avg = %.2f, want %.2f", avg, want)
	}
}

func TestCostBasisEmpty(t *testing.T) {
	r, _ := newTestRecorder()
	avg, qty := r.CostBasis("IF2609", DirectionLong)
	if avg != 0 || qty != 0 {
		t.Fatalf("empty seat cost basis = (%.2f, %.2f), want (0, 0)", avg, qty)
	}
}

func TestRecordSellFillOffsets(t *testing.T) {
	r, _ := newTestRecorder()
	r.RecordBuyFill(DirectionLong, buy("b1", 10, 100, 1000))
	r.RecordBuyFill(DirectionLong, buy("b2", 12, 100, 2000))
	r.RecordSellFill(DirectionLong, sell("s1", 11, 100, 3000))

	open := r.OpenLots("IF2609", DirectionLong)
	if len(open) != 1 || open[0].Price != 12 {
		t.Fatalf("open = %v, want single lot priced 12", open)
	}
}

func TestForceClear(t *testing.T) {
	r, _ := newTestRecorder()
	r.RecordBuyFill(DirectionLong, buy("b1", 10, 100, 1000))
	r.ForceClear("IF2609", DirectionLong)
	if len(r.OpenLots("IF2609", DirectionLong)) != 0 {
		t.Fatal("open lots survived ForceClear")
	}
}
