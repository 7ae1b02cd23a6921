package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/pubby-club/emojis/internal/domain"
	"github.com/pubby-club/emojis/internal/infra/httpx"
)

// shortcodesURL 是 GitHub 的 emoji 索引：shortcode -> 图片 URL。
// unicode 条目的图片 URL 形如 .../emoji/unicode/1f468-200d-1f469-200d-1f466.png?v8，
// basename 就是 codepoint 序列；非 unicode（自定义）条目没有该路径段。
const shortcodesURL = "https://api.github.com/emojis"

// Shortcodes 实现 GitHub emoji 索引的抓取与解析。
type Shortcodes struct{}

func (Shortcodes) Name() string { return "shortcodes" }

func (Shortcodes) Fetch(ctx context.Context, c *http.Client) ([]byte, error) {
	return httpx.Get(ctx, c, shortcodesURL)
}

// Parse 把索引倒排为 sequence -> shortcodes。
//
// 规则（固定）：
// - URL 不含 "/unicode/" 的条目（octocat、shipit 等自定义图标）跳过
// - basename 解析不出合法 codepoint 序列视为 parse 错误
// - 同一 sequence 的多个 shortcode 排序去重（稳定输出）
func (Shortcodes) Parse(raw []byte) (Fragment, error) {
	var index map[string]string
	if err := json.Unmarshal(raw, &index); err != nil {
		return Fragment{}, err
	}
	if len(index) == 0 {
		return Fragment{}, errors.New("索引为空")
	}

	codes := make(map[string][]string)
	for shortcode, rawURL := range index {
		if !strings.Contains(rawURL, "/unicode/") {
			continue
		}
		base := path.Base(rawURL)
		if i := strings.IndexByte(base, '?'); i >= 0 {
			base = base[:i]
		}
		base = strings.TrimSuffix(base, path.Ext(base))

		seq, _, ok := domain.ParseSequence(base)
		if !ok {
			return Fragment{}, errors.New("无法从 URL 提取 codepoint 序列：" + rawURL)
		}
		codes[seq] = append(codes[seq], shortcode)
	}
	if len(codes) == 0 {
		return Fragment{}, errors.New("未解析出任何 unicode 条目（数据源格式可能已变化）")
	}

	for seq, list := range codes {
		sort.Strings(list)
		codes[seq] = dedupSorted(list)
	}
	return Fragment{Shortcodes: codes}, nil
}

func dedupSorted(list []string) []string {
	out := list[:0]
	for i, s := range list {
		if i == 0 || s != list[i-1] {
			out = append(out, s)
		}
	}
	return out
}
