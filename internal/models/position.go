package models

// PositionState 是仓位生命周期状态。每个 (strategy, market) 只有一个当前状态。
type PositionState string

const (
	PositionFlat    PositionState = "FLAT"    // 无仓位
	PositionLong    PositionState = "LONG"    // 持有多仓
	PositionPending PositionState = "PENDING" // 订单已提交, 结果未知
)

// Valid 报告状态是否是受支持的枚举值
func (s PositionState) Valid() bool {
	switch s {
	case PositionFlat, PositionLong, PositionPending:
		return true
	}
	return false
}
