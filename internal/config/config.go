package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 emojis.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	// DefaultSize 是栅格输出的默认边长（正方形）。
	DefaultSize = 64
	// DefaultFormat 是默认输出格式。
	DefaultFormat = "webp"
	// DefaultQuality 是 webp 的默认质量（0-100）。
	DefaultQuality = 90
	// DefaultEmoticonsURL 是 emoticons 数据集的默认抓取页面。
	DefaultEmoticonsURL = "https://en.wikipedia.org/wiki/List_of_emoticons"

	// MaxConcurrency 是并发上限（超出截断；0 表示按 CPU 数自动决定）。
	MaxConcurrency = 64
	// MaxSize 是输出边长上限（再大就不是 emoji 资产了）。
	MaxSize = 4096
)

// DefaultDatasets 是 scrape 的默认数据集集合（顺序即抓取顺序）。
func DefaultDatasets() []string { return []string{"unicode", "shortcodes", "emoticons"} }

// CLIArgs 只包含 CLI 暴露的两项入口（path/apply），并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Path string

	Apply    bool
	ApplySet bool
}

// FileConfig 对应 emojis.json 的解析结构。
type FileConfig struct {
	Path        string       `json:"path"`
	Apply       *bool        `json:"apply"`
	Concurrency int          `json:"concurrency"`
	Proxy       *ProxyConfig `json:"proxy"`

	Build  *BuildFile  `json:"build"`
	Fetch  *FetchFile  `json:"fetch"`
	Scrape *ScrapeFile `json:"scrape"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

type BuildFile struct {
	Size          int      `json:"size"`
	Format        string   `json:"format"`
	Quality       *float64 `json:"quality"`
	Lossless      *bool    `json:"lossless"`
	Exact         *bool    `json:"exact"`
	ItemTimeoutMS int      `json:"item_timeout_ms"`
}

type FetchFile struct {
	Sources []string `json:"sources"`
}

type ScrapeFile struct {
	Datasets     []string `json:"datasets"`
	EmoticonsURL string   `json:"emoticons_url"`
}

// BuildConfig 是转换例程的最终配置（实现层直接消费）。
type BuildConfig struct {
	Size     int
	Format   string // "webp" | "png"
	Quality  float32
	Lossless bool
	Exact    bool

	// ItemTimeout 为单项转换的超时（0 表示关闭）；超时计为该项失败，不中断整轮。
	ItemTimeout time.Duration
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path  string
	Apply bool

	// Concurrency == 0 表示由 pool 按 CPU 数决定。
	Concurrency int
	ProxyURL    string

	Build BuildConfig

	FetchSources []string

	ScrapeDatasets []string
	EmoticonsURL   string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按文档约定发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/emojis.json（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/emojis.json（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：
// - path：CLI path > config path
// - apply：CLI --apply/--apply=false > config > 默认 false
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
	)

	if strings.TrimSpace(cli.Path) != "" {
		// CLI 给了 path：配置文件可选，位置固定在 <path>/emojis.json。
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath = filepath.Join(absPath, "emojis.json")

		var exists bool
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		_ = exists // 不存在也不报错

		return merge(absPath, cli, fc, cfgPath)
	}

	// CLI 没给 path：必须读取 <cwd>/emojis.json，且其中必须包含 path。
	cfgPath = filepath.Join(cwdAbs, "emojis.json")
	var exists bool
	fc, exists, err = readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	absPath := absCleanFrom(cwdAbs, fc.Path)
	return merge(absPath, cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	// apply：CLI > config > 默认 false
	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	concurrency := fc.Concurrency
	if concurrency < 0 {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("concurrency 不能为负数：%d", concurrency)}
	}
	// 0 = 按 CPU 数；超出上限截断。
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
	}

	build, err := mergeBuild(fc.Build)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	var sources []string
	if fc.Fetch != nil {
		for _, s := range fc.Fetch.Sources {
			s = strings.TrimSpace(s)
			if s == "" {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: errors.New("fetch.sources 含空白条目")}
			}
			sources = append(sources, s)
		}
	}

	datasets := DefaultDatasets()
	emoticonsURL := DefaultEmoticonsURL
	if fc.Scrape != nil {
		if len(fc.Scrape.Datasets) > 0 {
			datasets = nil
			for _, d := range fc.Scrape.Datasets {
				d = strings.ToLower(strings.TrimSpace(d))
				if err := validateDataset(d); err != nil {
					return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
				}
				datasets = append(datasets, d)
			}
		}
		if strings.TrimSpace(fc.Scrape.EmoticonsURL) != "" {
			u := strings.TrimSpace(fc.Scrape.EmoticonsURL)
			p, err := url.Parse(u)
			if err != nil || p.Scheme == "" || p.Host == "" {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("scrape.emoticons_url 无效：%q", u)}
			}
			emoticonsURL = u
		}
	}

	return EffectiveConfig{
		Path:           absPath,
		Apply:          apply,
		Concurrency:    concurrency,
		ProxyURL:       proxyURL,
		Build:          build,
		FetchSources:   sources,
		ScrapeDatasets: datasets,
		EmoticonsURL:   emoticonsURL,
	}, nil
}

// mergeBuild 做 build 段的默认填充与 fail-fast 校验（在任何 worker 启动之前）。
func mergeBuild(bf *BuildFile) (BuildConfig, error) {
	b := BuildConfig{
		Size:     DefaultSize,
		Format:   DefaultFormat,
		Quality:  DefaultQuality,
		Lossless: false,
		Exact:    true,
	}
	if bf == nil {
		return b, nil
	}

	if bf.Size != 0 {
		if bf.Size < 1 || bf.Size > MaxSize {
			return BuildConfig{}, fmt.Errorf("build.size 必须在 [1, %d]，实际是 %d", MaxSize, bf.Size)
		}
		b.Size = bf.Size
	}
	if strings.TrimSpace(bf.Format) != "" {
		f := strings.ToLower(strings.TrimSpace(bf.Format))
		switch f {
		case "webp", "png":
			b.Format = f
		default:
			return BuildConfig{}, fmt.Errorf("build.format 只能是 webp 或 png，实际是 %q", bf.Format)
		}
	}
	if bf.Quality != nil {
		q := *bf.Quality
		if q < 0 || q > 100 {
			return BuildConfig{}, fmt.Errorf("build.quality 必须在 [0, 100]，实际是 %v", q)
		}
		b.Quality = float32(q)
	}
	if bf.Lossless != nil {
		b.Lossless = *bf.Lossless
	}
	if bf.Exact != nil {
		b.Exact = *bf.Exact
	}
	if bf.ItemTimeoutMS < 0 {
		return BuildConfig{}, fmt.Errorf("build.item_timeout_ms 不能为负数：%d", bf.ItemTimeoutMS)
	}
	b.ItemTimeout = time.Duration(bf.ItemTimeoutMS) * time.Millisecond
	return b, nil
}

func validateDataset(d string) error {
	switch d {
	case "unicode", "shortcodes", "emoticons":
		return nil
	case "":
		return errors.New("scrape.datasets 含空白条目")
	default:
		return fmt.Errorf("scrape.datasets 只能是 unicode/shortcodes/emoticons，实际含 %q", d)
	}
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
