// Package source 把“数据集站点的变化”限制在本包内部；
// 核心流程只依赖统一的 Dataset 接口与稳定的 Fragment。
package source

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pubby-club/emojis/internal/domain"
)

// Fragment 是单个数据集解析出的目录片段。
// 三个字段最多填一个：unicode 填 Entries（基线），其余数据集填附加映射。
type Fragment struct {
	Entries    []domain.EmojiEntry
	Shortcodes map[string][]string // sequence -> shortcodes
	Emoticons  map[string][]string // literal -> emoticons
}

// Dataset 抽象一个 emoji 数据集来源。
//
// 约束：
// - Fetch 不做缓存、不做限速（重试由 http 传输层统一实现）
// - Parse 必须是纯函数：相同输入 => 相同输出
type Dataset interface {
	Name() string
	Fetch(ctx context.Context, c *http.Client) ([]byte, error)
	Parse(raw []byte) (Fragment, error)
}

// Error 是数据集阶段的可追溯错误。
// 上层可以据此把失败归类为 fetch_failed / parse_failed，并写入 report。
type Error struct {
	Dataset string // dataset name（小写）
	Stage   string // "fetch" 或 "parse"
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dataset=%s stage=%s: %v", e.Dataset, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Registry 是 dataset 的只读注册表（按 name 索引）。
// 用 map 做 O(1) 查找；dataset 数量极小，保持简单即可。
type Registry struct {
	byName map[string]Dataset
}

func NewRegistry(datasets ...Dataset) (Registry, error) {
	byName := make(map[string]Dataset, len(datasets))
	for _, d := range datasets {
		if d == nil {
			return Registry{}, fmt.Errorf("dataset 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(d.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("dataset.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 dataset：%q", name)
		}
		byName[name] = d
	}
	return Registry{byName: byName}, nil
}

func (r Registry) Get(name string) (Dataset, bool) {
	if r.byName == nil {
		return nil, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	d, ok := r.byName[name]
	return d, ok
}

// Names 返回已注册的 dataset 名（排序后，用于 usage/错误提示）。
func (r Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FetchParse 抓取并解析一个数据集，失败时返回带阶段信息的 *Error。
func FetchParse(ctx context.Context, reg Registry, name string, c *http.Client) (Fragment, error) {
	d, ok := reg.Get(name)
	if !ok {
		return Fragment{}, fmt.Errorf("dataset 未注册：%q", name)
	}

	raw, err := d.Fetch(ctx, c)
	if err != nil {
		return Fragment{}, &Error{Dataset: d.Name(), Stage: "fetch", Err: err}
	}
	frag, err := d.Parse(raw)
	if err != nil {
		return Fragment{}, &Error{Dataset: d.Name(), Stage: "parse", Err: err}
	}
	return frag, nil
}
