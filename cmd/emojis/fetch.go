package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/pubby-club/emojis/internal/config"
	"github.com/pubby-club/emojis/internal/domain"
	"github.com/pubby-club/emojis/internal/fetch"
	"github.com/pubby-club/emojis/internal/infra/fsx"
	"github.com/pubby-club/emojis/internal/infra/httpx"
)

// 通过可替换的函数指针，让测试能把 zipball 下载指向本地 httptest 服务。
var zipURLFunc = fetch.Spec.ZipURL

// runFetch 执行 fetch 子命令：把配置的图标集来源逐个下载、过滤并平铺到 <path>/svg/。
//
// 规则（固定）：
// - 来源逐个处理；单个来源失败不中断其余来源
// - 不同来源落盘同名文件是布局冲突：后来者记 target_conflict 失败
// - dry-run 只产出 planned 条目（不下载、不触盘）
func runFetch(ctx context.Context, eff config.EffectiveConfig, c *http.Client) domain.RunReport {
	started := time.Now()
	rr := domain.RunReport{
		Command:   "fetch",
		Path:      eff.Path,
		DryRun:    !eff.Apply,
		StartedAt: started,
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now()
		rr.Finalize()
		return rr
	}

	svgDir := filepath.Join(eff.Path, "svg")

	specs := make([]fetch.Spec, 0, len(eff.FetchSources))
	for _, raw := range eff.FetchSources {
		s, err := fetch.ParseSpec(raw)
		if err != nil {
			rr.Items = append(rr.Items, domain.ItemResult{
				Name:      raw,
				Status:    domain.StatusFailed,
				ErrorCode: domain.ErrCodeConfigInvalid,
				ErrorMsg:  err.Error(),
			})
			continue
		}
		specs = append(specs, s)
	}

	if !eff.Apply {
		for _, s := range specs {
			rr.Items = append(rr.Items, domain.ItemResult{
				Name:   s.Raw,
				Dst:    "svg",
				Status: domain.StatusPlanned,
			})
		}
		return finish()
	}

	if len(specs) > 0 {
		if err := fsx.ResetDir(svgDir); err != nil {
			code := domain.ErrCodeIOFailed
			if fsx.IsPathTypeConflict(err) {
				code = domain.ErrCodeTargetConflict
			}
			rr.Items = append(rr.Items, domain.ItemResult{
				Name:      "",
				Status:    domain.StatusFailed,
				ErrorCode: code,
				ErrorMsg:  err.Error(),
			})
			return finish()
		}
	}

	seen := make(map[string]string) // basename -> 来源 spec（跨来源冲突检测）
	for _, s := range specs {
		itemStart := time.Now()
		it := fetchOne(ctx, c, s, svgDir, seen)
		it.DurMS = time.Since(itemStart).Milliseconds()
		rr.Items = append(rr.Items, it)
	}
	return finish()
}

func fetchOne(ctx context.Context, c *http.Client, s fetch.Spec, svgDir string, seen map[string]string) domain.ItemResult {
	it := domain.ItemResult{Name: s.Raw, Dst: "svg"}
	fail := func(code string, err error) domain.ItemResult {
		it.Status = domain.StatusFailed
		it.ErrorCode = code
		it.ErrorMsg = err.Error()
		return it
	}

	data, err := httpx.Get(ctx, c, zipURLFunc(s))
	if err != nil {
		return fail(domain.ErrCodeFetchFailed, err)
	}

	entries, skipped, err := fetch.ExtractIcons(data, s.Dir)
	if err != nil {
		return fail(domain.ErrCodeParseFailed, err)
	}
	it.Skipped = skipped
	for _, e := range entries {
		if prev, ok := seen[e.Name]; ok {
			return fail(domain.ErrCodeTargetConflict,
				fmt.Errorf("与来源 %q 的文件名冲突：%q", prev, e.Name))
		}
	}
	for _, e := range entries {
		seen[e.Name] = s.Raw
	}

	if err := fetch.Save(svgDir, entries); err != nil {
		return fail(domain.ErrCodeIOFailed, err)
	}

	it.Status = domain.StatusProcessed
	it.Count = len(entries)
	for _, e := range entries {
		it.Bytes += int64(len(e.Data))
	}
	return it
}
