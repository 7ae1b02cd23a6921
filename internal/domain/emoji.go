package domain

import (
	"strconv"
	"strings"
)

// EmojiEntry 是合并目录里的一条 emoji 记录（最小可用集）。
//
// 约束：
// - Sequence 是大写十六进制码点序列，空格分隔（例如 "1F1EF 1F1F5"）
// - Literal 由 Sequence 唯一决定（二者必须一致）
// - 字段缺失允许为空，但结构必须稳定
type EmojiEntry struct {
	Sequence string `json:"sequence"`
	Literal  string `json:"literal"`
	Name     string `json:"name"`

	Group    string `json:"group,omitempty"`
	Subgroup string `json:"subgroup,omitempty"`
	Status   string `json:"status,omitempty"`
	Version  string `json:"version,omitempty"`

	Shortcodes []string `json:"shortcodes,omitempty"`
	Emoticons  []string `json:"emoticons,omitempty"`
}

// ParseSequence 把码点序列文本（"1F600" / "1f1ef-1f1f5" / "1F468 200D 1F469"）
// 规范化为 "1F468 200D 1F469" 形态，并给出对应的字面值。
// 非法十六进制或空输入返回 ok=false。
func ParseSequence(s string) (seq string, literal string, ok bool) {
	fields := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	if len(fields) == 0 {
		return "", "", false
	}

	parts := make([]string, 0, len(fields))
	var b strings.Builder
	for _, f := range fields {
		n, err := strconv.ParseUint(f, 16, 32)
		if err != nil || n == 0 || n > 0x10FFFF {
			return "", "", false
		}
		parts = append(parts, strings.ToUpper(f))
		b.WriteRune(rune(n))
	}
	return strings.Join(parts, " "), b.String(), true
}
