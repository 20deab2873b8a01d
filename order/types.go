package order

// Side represents order direction on the venue.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Direction 席位方向（多/空）。一个合约在某一时刻归属一个方向席位，
// 归属关系由配置的 ownership pattern 决定。
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Status represents order lifecycle as reported by the venue.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusPartial  Status = "PARTIAL"
	StatusFilled   Status = "FILLED"
	StatusCanceled Status = "CANCELED"
	StatusRejected Status = "REJECTED"
)

// Terminal 终态判断：终态订单不再产生后续回报。
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected:
		return true
	default:
		return false
	}
}

// Record 一笔本地归一化的成交记录。创建后不可变；
// 由推送成交回报或快照合并产生，归台账独占持有。
type Record struct {
	OrderID      string
	Instrument   string
	Side         Side
	Price        float64 // 成交价
	Quantity     float64 // 成交量
	ExecutedAtMs int64   // 成交时间（毫秒）
}

// RawOrder 交易所快照中一条订单的原始视图。
// 仅在抓取与合并期间存活，成交单会被转换为 Record 进台账。
type RawOrder struct {
	OrderID       string
	Instrument    string
	Side          Side
	Status        Status
	Price         float64 // 委托价
	Quantity      float64 // 委托量
	ExecutedQty   float64 // 已成交量
	AvgPrice      float64 // 成交均价（部分渠道缺失时回退到委托价）
	SubmittedAtMs int64
	UpdatedAtMs   int64
}

// ExecutedPrice 返回成交价；快照缺少均价时回退到委托价。
func (r RawOrder) ExecutedPrice() float64 {
	if r.AvgPrice > 0 {
		return r.AvgPrice
	}
	return r.Price
}

// ToRecord 把一条已成交的快照订单转换为台账记录。
func (r RawOrder) ToRecord() Record {
	return Record{
		OrderID:      r.OrderID,
		Instrument:   r.Instrument,
		Side:         r.Side,
		Price:        r.ExecutedPrice(),
		Quantity:     r.ExecutedQty,
		ExecutedAtMs: r.UpdatedAtMs,
	}
}

// DirectionResolver 根据合约代码解析其归属席位方向。
// 由配置层的 ownership 映射实现。
type DirectionResolver interface {
	ResolveDirection(instrument string) (Direction, bool)
}
