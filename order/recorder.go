package order

import "context"

// Recorder 把台账、过滤引擎与快照管理组合成一个门面，
// 对风控/策略层提供开仓集合与成本基准查询。
type Recorder struct {
	storage  *Storage
	api      *APIManager
	resolver DirectionResolver
}

func NewRecorder(storage *Storage, api *APIManager, resolver DirectionResolver) *Recorder {
	return &Recorder{storage: storage, api: api, resolver: resolver}
}

// LoadResult 快照重建的结果统计。
type LoadResult struct {
	Loaded    int      // 写入台账的成交单数
	Unmatched int      // 无法解析归属席位的成交单数
	Samples   []string // 未匹配合约名抽样（诊断用）
}

const unmatchedSampleCap = 8

// LoadFromOrders 用权威快照重建台账：清空后仅回放已成交订单。
// 归属解析是尽力而为的字符串匹配，解析不到的单子计数抽样、
// 不导致重建失败。
func (r *Recorder) LoadFromOrders(allOrders []RawOrder) LoadResult {
	r.storage.Clear()

	var res LoadResult
	byInstrument := make(map[string][]RawOrder)
	for _, raw := range allOrders {
		if raw.Status != StatusFilled {
			continue
		}
		dir, ok := r.resolver.ResolveDirection(raw.Instrument)
		if !ok {
			res.Unmatched++
			if len(res.Samples) < unmatchedSampleCap {
				res.Samples = append(res.Samples, raw.Instrument)
			}
			continue
		}
		rec := raw.ToRecord()
		switch raw.Side {
		case SideBuy:
			r.storage.AddBuyLot(dir, rec)
		case SideSell:
			r.storage.AddSellLot(dir, rec)
		default:
			continue
		}
		byInstrument[raw.Instrument] = append(byInstrument[raw.Instrument], raw)
		res.Loaded++
	}
	for instrument, orders := range byInstrument {
		r.api.CacheOrdersForInstrument(instrument, orders)
	}
	return res
}

// OpenLots 指定席位当前的开仓 lot 集合，每次查询即时重算，
// 不做缓存——lot 数量级很小，重算换取零陈旧读。
func (r *Recorder) OpenLots(instrument string, dir Direction) []Record {
	return OpenBuyLots(
		r.storage.ListBuyLots(instrument, dir),
		r.storage.ListSellLots(instrument, dir),
	)
}

// CostBasis 开仓集合的量加权均价与总量。无持仓时返回 (0, 0)。
func (r *Recorder) CostBasis(instrument string, dir Direction) (avgPrice, totalQty float64) {
	open := r.OpenLots(instrument, dir)
	totalQty = SumQuantity(open)
	if totalQty <= 0 {
		return 0, 0
	}
	return SumCost(open) / totalQty, totalQty
}

// RecordBuyFill 实时买入成交入账。
func (r *Recorder) RecordBuyFill(dir Direction, rec Record) {
	r.storage.AddBuyLot(dir, rec)
}

// RecordSellFill 实时卖出成交入账并按价格冲销买入 lot。
func (r *Recorder) RecordSellFill(dir Direction, rec Record) {
	r.storage.ApplySell(dir, rec)
}

// ForceClear 强制平仓后的台账清理。
func (r *Recorder) ForceClear(instrument string, dir Direction) {
	r.storage.ClearBuyLots(instrument, dir)
}

// ClearAll 换日清理：台账与快照缓存一并失效。
func (r *Recorder) ClearAll() {
	r.storage.Clear()
	r.api.ClearCache()
}

// FetchAllOrders 透传快照抓取，供重建域与巡检使用。
func (r *Recorder) FetchAllOrders(ctx context.Context, forceRefresh bool) ([]RawOrder, error) {
	return r.api.FetchAllOrders(ctx, forceRefresh)
}
