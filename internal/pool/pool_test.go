package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pubby-club/emojis/internal/domain"
)

func makeItems(n int) []domain.WorkItem {
	items := make([]domain.WorkItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.WorkItem{
			InputPath:  fmt.Sprintf("in/%03d.svg", i),
			OutputPath: fmt.Sprintf("out/%03d.webp", i),
		})
	}
	return items
}

func okConvert(ctx context.Context, item domain.WorkItem) (domain.OutputMeta, error) {
	return domain.OutputMeta{Format: "webp", Width: 32, Height: 32, Bytes: 1}, nil
}

func TestRun_AllSucceed_SumInvariant(t *testing.T) {
	const n = 50
	res, err := Run(context.Background(), makeItems(n), okConvert, Options{Workers: 4}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Total != n || res.Success != n || res.Failed != 0 {
		t.Fatalf("聚合不正确：%+v", res)
	}
	if res.Success+res.Failed != res.Total {
		t.Fatalf("success+failed != total：%+v", res)
	}
	if len(res.Results) != n {
		t.Fatalf("期望 %d 条结果，实际 %d", n, len(res.Results))
	}
}

func TestRun_AtMostOncePerItem(t *testing.T) {
	const n = 200

	var mu sync.Mutex
	seen := make(map[string]int, n)

	convert := func(ctx context.Context, item domain.WorkItem) (domain.OutputMeta, error) {
		mu.Lock()
		seen[item.InputPath]++
		mu.Unlock()
		return domain.OutputMeta{}, nil
	}

	res, err := Run(context.Background(), makeItems(n), convert, Options{Workers: 8}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Total != n || res.Success != n {
		t.Fatalf("聚合不正确：%+v", res)
	}
	for path, c := range seen {
		if c != 1 {
			t.Fatalf("条目 %q 被处理 %d 次（必须恰好一次）", path, c)
		}
	}
	// 结果也不允许重复引用同一 WorkItem。
	dedup := make(map[string]bool, n)
	for _, r := range res.Results {
		if dedup[r.Item.InputPath] {
			t.Fatalf("结果重复引用条目 %q", r.Item.InputPath)
		}
		dedup[r.Item.InputPath] = true
	}
}

func TestRun_SingleWorkerIsFIFO(t *testing.T) {
	const n = 20
	items := makeItems(n)

	res, err := Run(context.Background(), items, okConvert, Options{Workers: 1}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	for i, r := range res.Results {
		if r.Item.InputPath != items[i].InputPath {
			t.Fatalf("C=1 时必须按入队顺序产出：位置 %d 期望 %q，实际 %q",
				i, items[i].InputPath, r.Item.InputPath)
		}
	}
}

func TestRun_AllFail_RunCompletes(t *testing.T) {
	const n = 10
	convert := func(ctx context.Context, item domain.WorkItem) (domain.OutputMeta, error) {
		return domain.OutputMeta{}, errors.New("编码器拒绝")
	}

	res, err := Run(context.Background(), makeItems(n), convert, Options{Workers: 3}, nil)
	if err != nil {
		t.Fatalf("单项失败不应成为整轮错误：%v", err)
	}
	if res.Success != 0 || res.Failed != n {
		t.Fatalf("期望 success=0 failed=%d，实际：%+v", n, res)
	}
	for _, r := range res.Results {
		if r.OK || r.ErrorCode != domain.ErrCodeConvertFailed || r.ErrorMsg == "" {
			t.Fatalf("失败结果不完整：%+v", r)
		}
	}
}

func TestRun_SingleFailureIsAttributed(t *testing.T) {
	const n = 12
	const bad = "in/007.svg"

	convert := func(ctx context.Context, item domain.WorkItem) (domain.OutputMeta, error) {
		if item.InputPath == bad {
			return domain.OutputMeta{}, errors.New("输入损坏")
		}
		return domain.OutputMeta{}, nil
	}

	res, err := Run(context.Background(), makeItems(n), convert, Options{Workers: 4}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Success != n-1 || res.Failed != 1 {
		t.Fatalf("期望 success=%d failed=1，实际：%+v", n-1, res)
	}
	for _, r := range res.Results {
		if !r.OK && r.Item.InputPath != bad {
			t.Fatalf("失败归因错误：%+v", r)
		}
	}
}

func TestRun_EmptyItems_NoWorkers(t *testing.T) {
	convert := func(ctx context.Context, item domain.WorkItem) (domain.OutputMeta, error) {
		t.Fatalf("空输入不应调用转换例程")
		return domain.OutputMeta{}, nil
	}

	res, err := Run(context.Background(), nil, convert, Options{Workers: 4}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Total != 0 || res.Success != 0 || res.Failed != 0 {
		t.Fatalf("空输入应立即成功返回：%+v", res)
	}
}

func TestRun_PanicIsFatalAndPoisonsQueue(t *testing.T) {
	const n = 100
	convert := func(ctx context.Context, item domain.WorkItem) (domain.OutputMeta, error) {
		if item.InputPath == "in/003.svg" {
			panic("执行环境崩溃")
		}
		return domain.OutputMeta{}, nil
	}

	res, err := Run(context.Background(), makeItems(n), convert, Options{Workers: 2}, nil)
	if err == nil {
		t.Fatalf("worker panic 必须上抛为整轮错误")
	}
	var pe *panicError
	if !errors.As(err, &pe) {
		t.Fatalf("期望 *panicError，实际：%T %v", err, err)
	}
	// 已记录的结果保留；panic 的条目不会被记录。
	if res.Success+res.Failed != len(res.Results) {
		t.Fatalf("部分聚合不一致：%+v", res)
	}
	if len(res.Results) >= n {
		t.Fatalf("毒化后不应处理完全部条目（实际 %d/%d）", len(res.Results), n)
	}
}

func TestRun_ContextCancelStopsClaims(t *testing.T) {
	const n = 50
	ctx, cancel := context.WithCancel(context.Background())

	var once sync.Once
	convert := func(ctx context.Context, item domain.WorkItem) (domain.OutputMeta, error) {
		once.Do(cancel)
		return domain.OutputMeta{}, nil
	}

	res, err := Run(ctx, makeItems(n), convert, Options{Workers: 2}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际：%v", err)
	}
	if len(res.Results) >= n {
		t.Fatalf("取消后不应处理完全部条目（实际 %d/%d）", len(res.Results), n)
	}
}

func TestRun_ItemTimeoutRecordedAsFailure(t *testing.T) {
	items := makeItems(3)
	convert := func(ctx context.Context, item domain.WorkItem) (domain.OutputMeta, error) {
		if item.InputPath == "in/001.svg" {
			// 模拟挂死：不关心 ctx，纯粹等待。
			time.Sleep(2 * time.Second)
		}
		return domain.OutputMeta{}, nil
	}

	res, err := Run(context.Background(), items, convert, Options{Workers: 1, ItemTimeout: 50 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("超时必须记为条目失败而不是整轮错误：%v", err)
	}
	if res.Success != 2 || res.Failed != 1 {
		t.Fatalf("期望 success=2 failed=1，实际：%+v", res)
	}
	for _, r := range res.Results {
		if !r.OK && r.ErrorCode != domain.ErrCodeTimeout {
			t.Fatalf("期望 error_code=timeout，实际：%+v", r)
		}
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (o *recordingObserver) OnItemDone(res domain.ConversionResult, snap Snapshot) {
	o.mu.Lock()
	o.snaps = append(o.snaps, snap)
	o.mu.Unlock()
}

func TestRun_ObserverOnePerItemAndMonotonic(t *testing.T) {
	const n = 30
	obs := &recordingObserver{}

	convert := func(ctx context.Context, item domain.WorkItem) (domain.OutputMeta, error) {
		if item.InputPath == "in/005.svg" {
			return domain.OutputMeta{}, errors.New("失败一条")
		}
		return domain.OutputMeta{}, nil
	}

	res, err := Run(context.Background(), makeItems(n), convert, Options{Workers: 4}, obs)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(obs.snaps) != n {
		t.Fatalf("每个条目必须恰好触发一次 OnItemDone：期望 %d，实际 %d", n, len(obs.snaps))
	}
	// 每个快照都满足 success+failed <= total，且 remaining 一致。
	for _, s := range obs.snaps {
		if s.Success+s.Failed > s.Total {
			t.Fatalf("快照违反不变量：%+v", s)
		}
		if s.Remaining != s.Total-s.Success-s.Failed {
			t.Fatalf("remaining 不一致：%+v", s)
		}
	}
	if res.Failed != 1 {
		t.Fatalf("期望 failed=1，实际：%+v", res)
	}
	// 至少有一个快照携带该失败的简述。
	last := obs.snaps[len(obs.snaps)-1]
	if len(last.RecentErrors) != 1 {
		t.Fatalf("期望最后快照含 1 条错误简述，实际：%v", last.RecentErrors)
	}
}
