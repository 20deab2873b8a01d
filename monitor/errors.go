package monitor

import "errors"

// errMalformedFill 成交回报缺少时间戳或携带非法数值。
var errMalformedFill = errors.New("malformed fill event")
