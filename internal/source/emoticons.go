package source

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/pubby-club/emojis/internal/infra/httpx"
)

// Emoticons 从 HTML 表格页面（默认维基百科 List of emoticons）抓取
// ASCII 颜文字 -> emoji 字面量 的映射。URL 可配置，便于换镜像或换源。
type Emoticons struct {
	URL string
}

func (Emoticons) Name() string { return "emoticons" }

func (d Emoticons) Fetch(ctx context.Context, c *http.Client) ([]byte, error) {
	if strings.TrimSpace(d.URL) == "" {
		return nil, errors.New("emoticons URL 未配置")
	}
	return httpx.Get(ctx, c, d.URL)
}

// Parse 扫描页面里的所有表格行，把同一行中出现的 emoji 字面量与
// ASCII 颜文字配对。
//
// 规则（固定）：
// - 只看 <table> 内的 <tr>；少于两个单元格的行跳过
// - “emoji 单元格”= 含有 emoji 字面量字段的单元格；行内可有多个字面量
// - 其余单元格按空白/逗号切分，保留形如颜文字的 ASCII token
// - 行内缺 emoji 或缺颜文字则整行跳过（表头、说明行天然被过滤掉）
// - 每个字面量的颜文字排序去重（稳定输出）
func (Emoticons) Parse(raw []byte) (Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return Fragment{}, err
	}

	out := make(map[string][]string)
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}

		var literals, emoticons []string
		cells.Each(func(_ int, cell *goquery.Selection) {
			text := strings.TrimSpace(cell.Text())
			if text == "" {
				return
			}
			fields := splitTokens(text)
			hasEmoji := false
			for _, f := range fields {
				if isEmojiLiteral(f) {
					literals = append(literals, f)
					hasEmoji = true
				}
			}
			if hasEmoji {
				return
			}
			for _, f := range fields {
				if isEmoticonToken(f) {
					emoticons = append(emoticons, f)
				}
			}
		})
		if len(literals) == 0 || len(emoticons) == 0 {
			return
		}
		for _, lit := range literals {
			out[lit] = append(out[lit], emoticons...)
		}
	})

	if len(out) == 0 {
		return Fragment{}, errors.New("未解析出任何映射（页面结构可能已变化）")
	}
	for lit, list := range out {
		sort.Strings(list)
		out[lit] = dedupSorted(list)
	}
	return Fragment{Emoticons: out}, nil
}

// splitTokens 按空白与逗号切分单元格文本。
func splitTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
}

// isEmojiLiteral 判断字段是否是 emoji 字面量：
// 短（<=16 rune）、不含 ASCII、至少一个码点落在符号/emoji 区。
func isEmojiLiteral(s string) bool {
	n := 0
	hasEmoji := false
	for _, r := range s {
		n++
		if n > 16 {
			return false
		}
		if r < 0x80 {
			return false
		}
		if r >= 0x2600 && r <= 0x27BF || r >= 0x1F000 {
			hasEmoji = true
		}
	}
	return n > 0 && hasEmoji
}

// isEmoticonToken 判断字段是否像 ASCII 颜文字：
// 纯 ASCII、2..12 字节、至少一个标点（排除纯单词，例如表格里的英文说明）。
func isEmoticonToken(s string) bool {
	if len(s) < 2 || len(s) > 12 {
		return false
	}
	hasPunct := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x80 || c < 0x21 {
			return false
		}
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			hasPunct = true
		}
	}
	return hasPunct
}
