package order

import "sort"

// OpenBuyLots 给定一个席位的全部买入/卖出成交，返回尚未被卖出
// 冲销的买入 lot（开仓集合）。无状态纯函数，输入不被修改。
//
// 算法：卖出按成交时间从新到旧逐笔处理；对每笔卖出，取候选集中
// 成交时间早于该卖出的买入 lot——卖出量覆盖其总量则全部移除，
// 否则仅保留价格 >= 卖价的 lot（低价 lot 视为先被卖掉），晚于
// 该卖出的 lot 不受影响。
//
// 产出的未实现成本是“低成本先出、按价格近似”的口径，足够支撑
// 风险阈值判断，但不是会计级配对。
func OpenBuyLots(buys, sells []Record) []Record {
	candidates := append([]Record(nil), buys...)
	if len(candidates) == 0 || len(sells) == 0 {
		return candidates
	}

	ordered := append([]Record(nil), sells...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExecutedAtMs > ordered[j].ExecutedAtMs
	})

	for _, sell := range ordered {
		var prior, later []Record
		var priorQty float64
		for _, lot := range candidates {
			if lot.ExecutedAtMs < sell.ExecutedAtMs {
				prior = append(prior, lot)
				priorQty += lot.Quantity
			} else {
				later = append(later, lot)
			}
		}
		if len(prior) == 0 {
			// 该卖出之前没有买入，视为无事发生
			continue
		}
		if sell.Quantity >= priorQty {
			candidates = later
			continue
		}
		next := make([]Record, 0, len(candidates))
		for _, lot := range prior {
			if lot.Price >= sell.Price {
				next = append(next, lot)
			}
		}
		candidates = append(next, later...)
	}
	return candidates
}

// SumQuantity 汇总一组 lot 的数量。
func SumQuantity(lots []Record) float64 {
	var total float64
	for _, lot := range lots {
		total += lot.Quantity
	}
	return total
}

// SumCost 汇总一组 lot 的成本（价格×数量）。
func SumCost(lots []Record) float64 {
	var total float64
	for _, lot := range lots {
		total += lot.Price * lot.Quantity
	}
	return total
}
