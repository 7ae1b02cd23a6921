package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pubby-club/emojis/internal/domain"
	"github.com/pubby-club/emojis/internal/pool"
)

var _ pool.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：pool 只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int
	ok    int
	fail  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

// Start 在第一个 worker 启动前调用（打印执行头并启动 keepalive）。
func (p *progressUI) Start(total int) {
	now := time.Now()

	p.mu.Lock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}
	p.total = total

	fmt.Fprintf(p.w, "[%s] 执行: total_items=%d\n\n", now.Format("15:04:05"), total)
	p.lastPrinted = now

	if total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
	p.mu.Unlock()
}

// Stop 停止 keepalive（幂等；最后一条完成时 OnItemDone 也会触发）。
func (p *progressUI) Stop() {
	p.mu.Lock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
	p.mu.Unlock()
}

func (p *progressUI) OnItemDone(res domain.ConversionResult, snap pool.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = snap.Total
	p.done = snap.Success + snap.Failed
	p.ok = snap.Success
	p.fail = snap.Failed

	name := filepath.Base(res.Item.InputPath)

	if res.OK {
		fmt.Fprintf(p.w, "[%d/%d] %s OK %s %dx%d %dB (%s)\n",
			p.done, p.total, name, res.Meta.Format, res.Meta.Width, res.Meta.Height, res.Meta.Bytes,
			formatShortDuration(res.Dur),
		)
	} else {
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			p.done, p.total, name, res.ErrorCode, truncate(res.ErrorMsg, 160),
			formatShortDuration(res.Dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				// 已完成：安全退出（OnItemDone 会 close stopCh，但这里也做兜底）。
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}

				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					elapsed := time.Since(p.startedAt)
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, formatElapsed(elapsed),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-p.stopCh:
				return
			}
		}
	}()
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
