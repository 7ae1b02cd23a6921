package pool

import (
	"time"

	"github.com/pubby-club/emojis/internal/domain"
)

// Snapshot 是一次 record 之后的聚合快照（进度侧效应的载体）。
// 值语义、构造后不再修改；渲染/格式化完全是调用方的事。
type Snapshot struct {
	Total     int
	Success   int
	Failed    int
	Remaining int

	Elapsed time.Duration

	// RecentErrors 是最近若干条失败的简述（最多 recentErrorsMax 条，新的在后）。
	RecentErrors []string
}

// Observer 用于把“每个条目的完成事件”从核心执行流程中解耦出来。
//
// 约束：
// - pool 只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件来自多个 worker goroutine。
// - 每个被处理的条目恰好触发一次 OnItemDone（与 record 一一对应）。
type Observer interface {
	OnItemDone(res domain.ConversionResult, snap Snapshot)
}
