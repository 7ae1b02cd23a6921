package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pubby-club/emojis/internal/catalog"
	"github.com/pubby-club/emojis/internal/config"
	"github.com/pubby-club/emojis/internal/domain"
	"github.com/pubby-club/emojis/internal/source"
)

// runScrape 执行 scrape 子命令：抓取配置的数据集并把合并目录写入 <path>/catalog/。
func runScrape(ctx context.Context, eff config.EffectiveConfig, c *http.Client) domain.RunReport {
	reg, err := source.NewRegistry(
		source.Unicode{},
		source.Shortcodes{},
		source.Emoticons{URL: eff.EmoticonsURL},
	)
	if err != nil {
		// registry 构造失败是编程错误（重复/空名），但也走 report 路径而不是 panic。
		now := time.Now()
		rr := domain.RunReport{
			Command: "scrape", Path: eff.Path, DryRun: !eff.Apply,
			StartedAt: now, FinishedAt: now,
			Items: []domain.ItemResult{{
				Status:    domain.StatusFailed,
				ErrorCode: domain.ErrCodeConfigInvalid,
				ErrorMsg:  err.Error(),
			}},
		}
		rr.Finalize()
		return rr
	}
	return runScrapeWith(ctx, eff, reg, c)
}

// runScrapeWith 与 runScrape 相同，但 registry 可注入（测试用假数据集替换网络抓取）。
//
// 规则（固定）：
// - 数据集按配置顺序逐个抓取；单个失败不中断其余
// - 目录（catalog 条目）需要 unicode 基线：基线缺席/失败时记 skipped，不算错误
// - dry-run 只产出 planned 条目（不抓取、不触盘）
func runScrapeWith(ctx context.Context, eff config.EffectiveConfig, reg source.Registry, c *http.Client) domain.RunReport {
	started := time.Now()
	rr := domain.RunReport{
		Command:   "scrape",
		Path:      eff.Path,
		DryRun:    !eff.Apply,
		StartedAt: started,
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now()
		rr.Finalize()
		return rr
	}

	if !eff.Apply {
		for _, name := range eff.ScrapeDatasets {
			rr.Items = append(rr.Items, domain.ItemResult{
				Name:   name,
				Dst:    "catalog",
				Status: domain.StatusPlanned,
			})
		}
		// apply 总会产出 catalog 条目（processed/skipped/failed），plan 预览同样的形态。
		rr.Items = append(rr.Items, domain.ItemResult{
			Name:   "catalog",
			Dst:    "catalog",
			Status: domain.StatusPlanned,
		})
		return finish()
	}

	var frags []source.Fragment
	baselineOK := false
	for _, name := range eff.ScrapeDatasets {
		itemStart := time.Now()
		it := domain.ItemResult{Name: name, Dst: "catalog"}

		frag, err := source.FetchParse(ctx, reg, name, c)
		if err != nil {
			it.Status = domain.StatusFailed
			it.ErrorCode = scrapeErrCode(err)
			it.ErrorMsg = err.Error()
		} else {
			it.Status = domain.StatusProcessed
			it.Count = fragCount(frag)
			frags = append(frags, frag)
			if frag.Entries != nil {
				baselineOK = true
			}
		}
		it.DurMS = time.Since(itemStart).Milliseconds()
		rr.Items = append(rr.Items, it)
	}

	// 目录产物：没有基线就没有可合并的对象（片段抓取本身仍然有效）。
	cat := domain.ItemResult{Name: "catalog", Dst: "catalog"}
	if !baselineOK {
		cat.Status = domain.StatusSkipped
		rr.Items = append(rr.Items, cat)
		return finish()
	}

	itemStart := time.Now()
	entries, _, err := catalog.Merge(frags)
	if err != nil {
		cat.Status = domain.StatusFailed
		cat.ErrorCode = domain.ErrCodeParseFailed
		cat.ErrorMsg = err.Error()
		rr.Items = append(rr.Items, cat)
		return finish()
	}

	catDir := filepath.Join(eff.Path, "catalog")
	if err := catalog.Write(catDir, entries); err != nil {
		cat.Status = domain.StatusFailed
		cat.ErrorCode = domain.ErrCodeIOFailed
		cat.ErrorMsg = err.Error()
		rr.Items = append(rr.Items, cat)
		return finish()
	}

	cat.Status = domain.StatusProcessed
	cat.Count = len(entries)
	cat.Bytes = fileSize(filepath.Join(catDir, catalog.FileXML)) + fileSize(filepath.Join(catDir, catalog.FileJSON))
	cat.DurMS = time.Since(itemStart).Milliseconds()
	rr.Items = append(rr.Items, cat)
	return finish()
}

func scrapeErrCode(err error) string {
	var se *source.Error
	if errors.As(err, &se) && se.Stage == "fetch" {
		return domain.ErrCodeFetchFailed
	}
	return domain.ErrCodeParseFailed
}

func fragCount(f source.Fragment) int {
	if f.Entries != nil {
		return len(f.Entries)
	}
	return len(f.Shortcodes) + len(f.Emoticons)
}

func fileSize(p string) int64 {
	fi, err := os.Stat(p)
	if err != nil {
		return 0
	}
	return fi.Size()
}
