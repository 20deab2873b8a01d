package lifecycle

import "time"

// Delay 计算第 failures 次失败后的重试间隔：base * min(2^(failures-1), capFactor)。
// 独立于调度器的纯函数，capFactor <= 0 时按 1 处理。
func Delay(base time.Duration, failures, capFactor int) time.Duration {
	if failures <= 0 {
		return 0
	}
	if capFactor <= 0 {
		capFactor = 1
	}
	factor := 1
	for i := 1; i < failures; i++ {
		factor *= 2
		if factor >= capFactor {
			factor = capFactor
			break
		}
	}
	return base * time.Duration(factor)
}
