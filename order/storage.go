package order

import (
	"math"
	"sync"
)

type seatKey struct {
	instrument string
	direction  Direction
}

// Storage 维护按（合约，方向）分组的买卖 lot 台账。
// 纯内存、无 I/O；读操作返回拷贝。调用方负责语义校验，
// 非法数值（NaN/Inf/非正）静默丢弃而不报错——台账绝不因
// 脏数据阻塞交易主流程。
type Storage struct {
	mu    sync.RWMutex
	buys  map[seatKey][]Record
	sells map[seatKey][]Record
}

func NewStorage() *Storage {
	return &Storage{
		buys:  make(map[seatKey][]Record),
		sells: make(map[seatKey][]Record),
	}
}

// validLot 数值合法性：价格与数量均为有限正数。
func validLot(price, qty float64) bool {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return false
	}
	if math.IsNaN(qty) || math.IsInf(qty, 0) || qty <= 0 {
		return false
	}
	return true
}

// ListBuyLots 返回指定席位的全部买入 lot（拷贝）。
func (s *Storage) ListBuyLots(instrument string, dir Direction) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.buys[seatKey{instrument, dir}]...)
}

// ListSellLots 返回指定席位的全部卖出 lot（拷贝）。
func (s *Storage) ListSellLots(instrument string, dir Direction) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.sells[seatKey{instrument, dir}]...)
}

// AddBuyLot 追加一笔买入成交。
func (s *Storage) AddBuyLot(dir Direction, rec Record) {
	if !validLot(rec.Price, rec.Quantity) {
		return
	}
	key := seatKey{rec.Instrument, dir}
	s.mu.Lock()
	s.buys[key] = append(s.buys[key], rec)
	s.mu.Unlock()
}

// AddSellLot 仅登记一笔卖出成交，不触发买入 lot 冲销。
// 重建路径使用：开仓集合由过滤引擎按全量历史即时计算。
func (s *Storage) AddSellLot(dir Direction, rec Record) {
	if !validLot(rec.Price, rec.Quantity) {
		return
	}
	key := seatKey{rec.Instrument, dir}
	s.mu.Lock()
	s.sells[key] = append(s.sells[key], rec)
	s.mu.Unlock()
}

// ApplySell 登记卖出成交并按价格冲销买入 lot：
//   - 卖出量 >= 现有买入总量：视为全部对冲，清空买入 lot；
//   - 否则移除价格严格低于卖价的买入 lot（低价 lot 先卖）。
//
// 这是按价格而非按时间的近似税务配对口径，偏保守的成本
// 基准口径，刻意如此，勿“修正”为严格 FIFO。
func (s *Storage) ApplySell(dir Direction, sell Record) {
	if !validLot(sell.Price, sell.Quantity) {
		return
	}
	key := seatKey{sell.Instrument, dir}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sells[key] = append(s.sells[key], sell)

	lots := s.buys[key]
	if len(lots) == 0 {
		return
	}
	var total float64
	for _, lot := range lots {
		total += lot.Quantity
	}
	if sell.Quantity >= total {
		delete(s.buys, key)
		return
	}
	kept := make([]Record, 0, len(lots))
	for _, lot := range lots {
		if lot.Price >= sell.Price {
			kept = append(kept, lot)
		}
	}
	s.buys[key] = kept
}

// ClearBuyLots 无条件清空指定席位的买入 lot。
// 用于保护性/强制平仓，这类场景下逐 lot 精确配对没有意义。
func (s *Storage) ClearBuyLots(instrument string, dir Direction) {
	s.mu.Lock()
	delete(s.buys, seatKey{instrument, dir})
	s.mu.Unlock()
}

// Clear 清空全部台账，换日清理时调用。
func (s *Storage) Clear() {
	s.mu.Lock()
	s.buys = make(map[seatKey][]Record)
	s.sells = make(map[seatKey][]Record)
	s.mu.Unlock()
}
