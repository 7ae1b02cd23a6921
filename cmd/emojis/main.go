package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pubby-club/emojis/internal/config"
	"github.com/pubby-club/emojis/internal/domain"
	"github.com/pubby-club/emojis/internal/infra/fsx"
	"github.com/pubby-club/emojis/internal/infra/httpx"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "fetch", "build", "scrape":
		if code := subCmd(args[0], args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func subCmd(name string, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printSubUsage(name)
			return 0
		}
	}

	ca, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printSubUsage(name)
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, ca)
	if err != nil {
		rr := reportForConfigError(name, cwdAbs, ca, err)
		emitReport(rr)
		return 1
	}

	progressW, interactive := pickProgressWriter()

	// Ctrl-C / SIGTERM -> context 取消：worker 停止认领，已完成条目照常进 report。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rr domain.RunReport
	switch name {
	case "build":
		var obs *progressUI
		if interactive {
			obs = newProgressUI(progressW)
		}
		rr = runBuild(ctx, eff, obs)
	case "fetch", "scrape":
		c, cerr := httpx.NewClient(eff.ProxyURL)
		if cerr != nil {
			fmt.Fprintf(os.Stderr, "初始化 HTTP client 失败：%v\n", cerr)
			return 1
		}
		if name == "fetch" {
			rr = runFetch(ctx, eff, c)
		} else {
			rr = runScrape(ctx, eff, c)
		}
	}

	// apply：必须写入 <path>/report.json；dry-run 禁止落盘。
	if eff.Apply {
		if err := writeReportFile(eff.Path, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, name, eff)
	}
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

func parseArgs(args []string) (config.CLIArgs, error) {
	ca := config.CLIArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--apply":
			ca.Apply = true
			ca.ApplySet = true
		case strings.HasPrefix(a, "--apply="):
			v := strings.TrimPrefix(a, "--apply=")
			switch v {
			case "true":
				ca.Apply = true
			case "false":
				ca.Apply = false
			default:
				return config.CLIArgs{}, fmt.Errorf("--apply 只能是 true 或 false，实际是 %q", v)
			}
			ca.ApplySet = true
		case strings.HasPrefix(a, "-"):
			return config.CLIArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ca.Path != "" {
				return config.CLIArgs{}, fmt.Errorf("重复的 path：%q 与 %q", ca.Path, a)
			}
			ca.Path = a
		}
	}

	return ca, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  emojis <命令> [path] [--apply[=true|false]]

命令：
  fetch   下载图标集（GitHub zipball -> <path>/svg/）
  build   批量转换 <path>/svg/ -> <path>/out/（默认 dry-run）
  scrape  抓取 emoji 数据集并生成 <path>/catalog/

使用 "emojis <命令> --help" 查看详细说明。
`)
}

func printSubUsage(name string) {
	fmt.Fprintf(os.Stdout, `用法：
  emojis %s [path] [--apply[=true|false]]

参数：
  --apply     执行落盘（默认 dry-run）；支持 --apply=false 覆盖配置中的 apply=true
  -h, --help  显示帮助

配置：
  path 未指定时读取 <cwd>/emojis.json（必须含 path 字段）；
  指定时读取 <path>/emojis.json（可选）。
`, name)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：processed=%d planned=%d skipped=%d failed=%d\n",
			rr.Summary.Processed, rr.Summary.Planned, rr.Summary.Skipped, rr.Summary.Failed,
		)
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := it.Name
				if key == "" {
					key = "<run>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：processed=%d planned=%d skipped=%d failed=%d\n",
		rr.Summary.Processed, rr.Summary.Planned, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

func reportForConfigError(command, cwdAbs string, ca config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Command:    command,
		Path:       cwdAbs,
		DryRun:     !(ca.ApplySet && ca.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Name:      "",
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(root string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(root, "report.json", b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, command string, eff config.EffectiveConfig) {
	// 这几行用于降低“完成后不知道产物在哪”的摩擦，且不影响 stdout JSON 契约。
	if w == nil {
		return
	}
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Path, "report.json"))
	}
	switch command {
	case "fetch":
		fmt.Fprintf(w, "svg: %s\n", filepath.Join(eff.Path, "svg"))
	case "build":
		fmt.Fprintf(w, "out: %s\n", filepath.Join(eff.Path, "out"))
	case "scrape":
		fmt.Fprintf(w, "catalog: %s\n", filepath.Join(eff.Path, "catalog"))
	}
}
