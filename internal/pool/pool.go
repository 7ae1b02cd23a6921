// Package pool 实现固定宽度的并行转换分发器：
// C 个 worker 共享一个待处理队列，各自循环“认领 -> 转换 -> 记录”，直到队列耗尽。
//
// 共享可变状态只有 queue + aggregate 这一对；其余（转换配置、输出目录）
// 在构造后只读，可安全共享。
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pubby-club/emojis/internal/domain"
	"github.com/pubby-club/emojis/internal/infra/fsx"
)

const recentErrorsMax = 5

// Converter 是注入的转换例程（池的唯一外部协作者）。
//
// 约束：
// - 失败（输入损坏、编码器拒绝）必须以 error 返回，会被记为该条目的失败；
// - 返回 error 绝不会中断整轮运行；panic 则视为执行环境崩溃（整轮致命）。
type Converter func(ctx context.Context, item domain.WorkItem) (domain.OutputMeta, error)

// Options 是池的构造参数。
type Options struct {
	// Workers <= 0 时按可用 CPU 数决定（最少 1）。
	Workers int

	// ItemTimeout > 0 时包裹每次转换调用：超时记为该条目失败（而不是无限等待）。
	ItemTimeout time.Duration
}

// Result 是一轮运行的最终聚合。
// 不变量：Success+Failed <= Total 恒成立；正常完成时 Success+Failed == Total。
type Result struct {
	Total   int
	Success int
	Failed  int

	Results []domain.ConversionResult
}

// Run 构造队列、启动 C 个 worker 并等待全部退出，返回最终聚合。
//
// 语义：
// - items 为空：立即成功返回（total=0，不启动任何 worker）
// - 普通的单项转换失败只记录，不提前终止
// - worker panic（执行环境崩溃）：毒化队列让同伴尽快停止认领，随后作为
//   Run 的 error 返回；已记录的条目结果保留在 Result 中
// - ctx 取消：协作式——每次认领前检查，取消后 Run 返回 ctx 的错误
func Run(ctx context.Context, items []domain.WorkItem, convert Converter, opts Options, obs Observer) (Result, error) {
	if convert == nil {
		return Result{}, errors.New("convert 不能为空")
	}

	agg := newAggregate(len(items))
	if len(items) == 0 {
		return agg.result(), nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}
	// 多开无益：worker 数不超过条目数。
	if workers > len(items) {
		workers = len(items)
	}

	q := &queue{items: items}

	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			errs[slot] = runWorker(ctx, q, agg, convert, opts.ItemTimeout, obs)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return agg.result(), err
		}
	}
	return agg.result(), nil
}

// queue 是共享的待处理队列（系统中唯一的同步点）。
// FIFO；并发认领绝不会把同一条目交给两个 worker。
type queue struct {
	mu       sync.Mutex
	items    []domain.WorkItem
	next     int
	poisoned bool
}

// claimNext 原子地移除并返回一个条目；队列耗尽（或被毒化）返回 ok=false。
func (q *queue) claimNext() (domain.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.poisoned || q.next >= len(q.items) {
		return domain.WorkItem{}, false
	}
	it := q.items[q.next]
	q.next++
	return it, true
}

// poison 让后续的 claimNext 全部返回空（致命失败/取消时让同伴尽快退出）。
func (q *queue) poison() {
	q.mu.Lock()
	q.poisoned = true
	q.mu.Unlock()
}

// aggregate 是整轮的聚合器；record 内部串行化。
type aggregate struct {
	mu sync.Mutex

	total     int
	success   int
	failed    int
	results   []domain.ConversionResult
	recentErr []string

	startedAt time.Time
}

func newAggregate(total int) *aggregate {
	return &aggregate{
		total:     total,
		results:   make([]domain.ConversionResult, 0, total),
		startedAt: time.Now(),
	}
}

// record 追加一条结果、更新计数，并返回触发进度侧效应用的快照。
func (a *aggregate) record(res domain.ConversionResult) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.results = append(a.results, res)
	if res.OK {
		a.success++
	} else {
		a.failed++
		msg := res.Item.InputPath + ": " + res.ErrorMsg
		a.recentErr = append(a.recentErr, msg)
		if len(a.recentErr) > recentErrorsMax {
			a.recentErr = a.recentErr[len(a.recentErr)-recentErrorsMax:]
		}
	}

	return Snapshot{
		Total:        a.total,
		Success:      a.success,
		Failed:       a.failed,
		Remaining:    a.total - a.success - a.failed,
		Elapsed:      time.Since(a.startedAt),
		RecentErrors: append([]string(nil), a.recentErr...),
	}
}

func (a *aggregate) result() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Result{
		Total:   a.total,
		Success: a.success,
		Failed:  a.failed,
		Results: append([]domain.ConversionResult(nil), a.results...),
	}
}

// runWorker 是单个 worker 的主循环：认领 -> 转换 -> 记录，队列空则退出。
// 单个 worker 内部因果有序：claim 先于 convert 先于 record 先于下一次 claim。
func runWorker(ctx context.Context, q *queue, agg *aggregate, convert Converter, timeout time.Duration, obs Observer) error {
	for {
		if err := ctx.Err(); err != nil {
			q.poison()
			return err
		}

		item, ok := q.claimNext()
		if !ok {
			return nil
		}

		started := time.Now()
		meta, err := convertItem(ctx, item, convert, timeout)

		var pe *panicError
		if errors.As(err, &pe) {
			// 执行环境崩溃（而非单项转换失败）：毒化队列并上抛给 supervisor。
			q.poison()
			return pe
		}

		res := domain.ConversionResult{
			Item: item,
			Dur:  time.Since(started),
		}
		if err != nil {
			res.ErrorCode = classify(err)
			res.ErrorMsg = err.Error()
		} else {
			res.OK = true
			res.Meta = meta
		}

		snap := agg.record(res)
		if obs != nil {
			obs.OnItemDone(res, snap)
		}
	}
}

// convertItem 执行一次转换；timeout > 0 时把“挂死”转化为可记录的失败。
func convertItem(ctx context.Context, item domain.WorkItem, convert Converter, timeout time.Duration) (domain.OutputMeta, error) {
	if timeout <= 0 {
		return safeConvert(ctx, item, convert)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type out struct {
		meta domain.OutputMeta
		err  error
	}
	ch := make(chan out, 1) // 有缓冲：超时后转换 goroutine 也不会泄漏在发送上
	go func() {
		m, e := safeConvert(cctx, item, convert)
		ch <- out{meta: m, err: e}
	}()

	select {
	case o := <-ch:
		return o.meta, o.err
	case <-cctx.Done():
		return domain.OutputMeta{}, fmt.Errorf("转换超时（>%s）：%w", timeout, cctx.Err())
	}
}

// safeConvert 把 Converter 的 panic 捕获为 *panicError（由 worker 决定如何上抛）。
func safeConvert(ctx context.Context, item domain.WorkItem, convert Converter) (meta domain.OutputMeta, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{val: r, stack: debug.Stack()}
		}
	}()
	return convert(ctx, item)
}

// panicError 标记“执行环境崩溃”这一类不可本地恢复的失败。
type panicError struct {
	val   any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("worker 异常退出（panic）：%v\n%s", e.val, e.stack)
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrCodeTimeout
	case fsx.IsPathTypeConflict(err):
		return domain.ErrCodeTargetConflict
	default:
		return domain.ErrCodeConvertFailed
	}
}
