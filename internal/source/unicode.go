package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pubby-club/emojis/internal/domain"
	"github.com/pubby-club/emojis/internal/infra/httpx"
)

// unicodeURL 指向 Unicode 官方发布的 emoji 测试数据（也是最完整的序列清单）。
const unicodeURL = "https://unicode.org/Public/emoji/latest/emoji-test.txt"

// Unicode 实现 emoji-test.txt 的抓取与解析，产出目录基线。
type Unicode struct{}

func (Unicode) Name() string { return "unicode" }

func (Unicode) Fetch(ctx context.Context, c *http.Client) ([]byte, error) {
	return httpx.Get(ctx, c, unicodeURL)
}

// Parse 单遍扫描 emoji-test.txt。
//
// 文件结构（稳定多年）：
//
//	# group: Smileys & Emotion
//	# subgroup: face-smiling
//	1F600        ; fully-qualified  # 😀 E1.0 grinning face
//
// 规则（固定）：
// - "# group:" / "# subgroup:" 注释行更新当前分组状态
// - 数据行：codepoints ; status # literal Ever.sion name
// - 无法解析 sequence 的数据行视为 parse 错误（数据源约定被破坏，不静默跳过）
// - 输出顺序 = 文件行序（目录的稳定顺序就来自这里）
func (Unicode) Parse(raw []byte) (Fragment, error) {
	if len(raw) == 0 {
		return Fragment{}, errors.New("数据为空")
	}

	var (
		entries  []domain.EmojiEntry
		group    string
		subgroup string
	)

	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if v, ok := strings.CutPrefix(line, "# group:"); ok {
				group = strings.TrimSpace(v)
				subgroup = ""
			} else if v, ok := strings.CutPrefix(line, "# subgroup:"); ok {
				subgroup = strings.TrimSpace(v)
			}
			continue
		}

		data, comment, _ := strings.Cut(line, "#")
		codes, status, ok := strings.Cut(data, ";")
		if !ok {
			return Fragment{}, fmt.Errorf("第 %d 行缺少 status 字段：%q", lineNo, line)
		}

		seq, literal, ok := domain.ParseSequence(codes)
		if !ok {
			return Fragment{}, fmt.Errorf("第 %d 行 codepoints 无效：%q", lineNo, line)
		}

		version, name := splitComment(comment)
		entries = append(entries, domain.EmojiEntry{
			Sequence: seq,
			Literal:  literal,
			Name:     name,
			Group:    group,
			Subgroup: subgroup,
			Status:   strings.TrimSpace(status),
			Version:  version,
		})
	}
	if err := sc.Err(); err != nil {
		return Fragment{}, err
	}
	if len(entries) == 0 {
		return Fragment{}, errors.New("未解析出任何条目（数据源格式可能已变化）")
	}
	return Fragment{Entries: entries}, nil
}

// splitComment 解析数据行的注释段 " 😀 E1.0 grinning face"。
// 第一个字段是字面量（仅核对用，真正的字面量由 codepoints 推导）；
// 第二个字段是 "E<version>"；其余是展示名。
func splitComment(comment string) (version, name string) {
	fields := strings.Fields(comment)
	if len(fields) < 2 {
		return "", strings.Join(fields, " ")
	}
	rest := fields[1:]
	if v, ok := strings.CutPrefix(rest[0], "E"); ok && v != "" && v[0] >= '0' && v[0] <= '9' {
		return v, strings.Join(rest[1:], " ")
	}
	return "", strings.Join(rest, " ")
}
