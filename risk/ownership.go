package risk

import (
	"strings"

	"order-keeper-go/order"
)

// MonitorSpec 一个受监控席位的配置：名字、归属匹配模式与方向。
// 模式支持精确匹配或尾部 '*' 前缀匹配（合约代码带月份，例如
// IF2609，配置 IF* 即归属该席位），大小写不敏感。
type MonitorSpec struct {
	Name              string
	InstrumentPattern string
	Direction         order.Direction
	DailyLossLimit    float64
}

// Matches 尽力而为的字符串归属匹配。
func (s MonitorSpec) Matches(instrument string) bool {
	pattern := strings.ToUpper(s.InstrumentPattern)
	name := strings.ToUpper(instrument)
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(name, prefix)
	}
	return name == pattern
}

// Ownership 把合约代码解析到归属席位；配置顺序即优先级。
// 启动时构建一次，运行期只读。
type Ownership struct {
	monitors []MonitorSpec
}

func NewOwnership(monitors []MonitorSpec) *Ownership {
	return &Ownership{monitors: append([]MonitorSpec(nil), monitors...)}
}

// Resolve 返回第一个匹配的席位配置。
func (o *Ownership) Resolve(instrument string) (MonitorSpec, bool) {
	for _, m := range o.monitors {
		if m.Matches(instrument) {
			return m, true
		}
	}
	return MonitorSpec{}, false
}

// ResolveDirection 实现 order.DirectionResolver。
func (o *Ownership) ResolveDirection(instrument string) (order.Direction, bool) {
	m, ok := o.Resolve(instrument)
	if !ok {
		return "", false
	}
	return m.Direction, true
}

// Monitors 返回席位配置（拷贝）。
func (o *Ownership) Monitors() []MonitorSpec {
	return append([]MonitorSpec(nil), o.monitors...)
}
