package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pubby-club/emojis/internal/config"
	"github.com/pubby-club/emojis/internal/domain"
	"github.com/pubby-club/emojis/internal/infra/fsx"
	"github.com/pubby-club/emojis/internal/pool"
	"github.com/pubby-club/emojis/internal/raster"
	"github.com/pubby-club/emojis/internal/scan"
)

// runBuild 执行 build 子命令：扫描 <path>/svg/，经 worker 池批量转换到 <path>/out/。
//
// 阶段（固定顺序）：
// 1) 扫描输入并生成工作项（输出名冲突在这里 fail fast）
// 2) dry-run：只产出 planned 条目，不触盘
// 3) apply：清空 out/ 后跑池；每个条目的结果一一写入 report
func runBuild(ctx context.Context, eff config.EffectiveConfig, ui *progressUI) domain.RunReport {
	started := time.Now()
	rr := domain.RunReport{
		Command:   "build",
		Path:      eff.Path,
		DryRun:    !eff.Apply,
		StartedAt: started,
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now()
		rr.Finalize()
		return rr
	}
	fail := func(name, code string, err error) domain.RunReport {
		rr.Items = append(rr.Items, domain.ItemResult{
			Name:      name,
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		})
		return finish()
	}

	svgDir := filepath.Join(eff.Path, "svg")
	outDir := filepath.Join(eff.Path, "out")

	ropts := raster.Options{
		Size:     eff.Build.Size,
		Format:   eff.Build.Format,
		Quality:  eff.Build.Quality,
		Lossless: eff.Build.Lossless,
		Exact:    eff.Build.Exact,
	}
	if err := ropts.Validate(); err != nil {
		return fail("", domain.ErrCodeConfigInvalid, err)
	}

	icons, err := scan.ScanIcons(svgDir)
	if err != nil {
		return fail("", domain.ErrCodeIOFailed, err)
	}

	// 输入名 -> 输出名；不同输入映射到同一输出名说明源目录布局有问题，
	// 继续跑只会产生静默覆盖，这里直接整轮失败。
	items := make([]domain.WorkItem, 0, len(icons))
	names := make([]string, 0, len(icons))
	seen := make(map[string]string, len(icons))
	for _, ic := range icons {
		outName := ic.Base + "." + eff.Build.Format
		if prev, ok := seen[outName]; ok {
			return fail("", domain.ErrCodeTargetConflict,
				fmt.Errorf("输出名冲突：%q（来自 %q 与 %q）", outName, prev, ic.RelPath))
		}
		seen[outName] = ic.RelPath
		items = append(items, domain.WorkItem{
			InputPath:  ic.AbsPath,
			OutputPath: filepath.Join(outDir, outName),
		})
		names = append(names, ic.RelPath)
	}

	if !eff.Apply {
		for i, it := range items {
			rr.Items = append(rr.Items, domain.ItemResult{
				Name:   names[i],
				Dst:    relOrSelf(eff.Path, it.OutputPath),
				Status: domain.StatusPlanned,
			})
		}
		return finish()
	}

	if err := fsx.ResetDir(outDir); err != nil {
		code := domain.ErrCodeIOFailed
		if fsx.IsPathTypeConflict(err) {
			code = domain.ErrCodeTargetConflict
		}
		return fail("", code, err)
	}

	var obs pool.Observer
	if ui != nil {
		ui.Start(len(items))
		defer ui.Stop()
		obs = ui
	}

	convert := func(_ context.Context, item domain.WorkItem) (domain.OutputMeta, error) {
		return raster.Convert(item, ropts)
	}
	res, runErr := pool.Run(ctx, items, convert, pool.Options{
		Workers:     eff.Concurrency,
		ItemTimeout: eff.Build.ItemTimeout,
	}, obs)

	nameOf := make(map[string]string, len(items))
	for i, it := range items {
		nameOf[it.InputPath] = names[i]
	}
	for _, cr := range res.Results {
		it := domain.ItemResult{
			Name:  nameOf[cr.Item.InputPath],
			Dst:   relOrSelf(eff.Path, cr.Item.OutputPath),
			DurMS: cr.Dur.Milliseconds(),
		}
		if cr.OK {
			it.Status = domain.StatusProcessed
			it.Bytes = cr.Meta.Bytes
		} else {
			it.Status = domain.StatusFailed
			it.ErrorCode = cr.ErrorCode
			it.ErrorMsg = cr.ErrorMsg
		}
		rr.Items = append(rr.Items, it)
	}

	if runErr != nil {
		// 池级失败（panic/取消）：已记录的条目保留，整轮补一条合成失败。
		return fail("", domain.ErrCodeAborted, runErr)
	}
	return finish()
}

// relOrSelf 尽力把 p 表示为相对 root 的路径（便于阅读）；失败时原样返回。
func relOrSelf(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return rel
}
