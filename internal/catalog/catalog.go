// Package catalog 把各数据集的片段合并成一份 emoji 目录，并序列化为 XML/JSON。
package catalog

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/pubby-club/emojis/internal/domain"
	"github.com/pubby-club/emojis/internal/infra/fsx"
	"github.com/pubby-club/emojis/internal/source"
)

const (
	FileXML  = "emoji.xml"
	FileJSON = "emoji.json"
)

// Merge 把附加数据集挂到 unicode 基线上。
//
// 规则（固定）：
// - 基线 = 含 Entries 的片段；恰好一个，否则报错
// - shortcodes 按 Sequence 挂接；emoticons 按 Literal 挂接
// - 基线之外的 sequence/literal 直接丢弃（计入 dropped，不算错误）
// - 输出顺序 = 基线顺序（目录的稳定顺序来自数据源行序）
func Merge(frags []source.Fragment) (entries []domain.EmojiEntry, dropped int, err error) {
	var base []domain.EmojiEntry
	shortcodes := make(map[string][]string)
	emoticons := make(map[string][]string)

	for _, f := range frags {
		if f.Entries != nil {
			if base != nil {
				return nil, 0, errors.New("重复的基线片段")
			}
			base = f.Entries
		}
		for seq, list := range f.Shortcodes {
			shortcodes[seq] = append(shortcodes[seq], list...)
		}
		for lit, list := range f.Emoticons {
			emoticons[lit] = append(emoticons[lit], list...)
		}
	}
	if base == nil {
		return nil, 0, errors.New("缺少基线片段（unicode 数据集）")
	}

	entries = make([]domain.EmojiEntry, len(base))
	copy(entries, base)
	for i := range entries {
		if list, ok := shortcodes[entries[i].Sequence]; ok {
			entries[i].Shortcodes = list
			delete(shortcodes, entries[i].Sequence)
		}
		if list, ok := emoticons[entries[i].Literal]; ok {
			entries[i].Emoticons = list
			delete(emoticons, entries[i].Literal)
		}
	}
	return entries, len(shortcodes) + len(emoticons), nil
}

type catalogXML struct {
	XMLName xml.Name   `xml:"emojis"`
	Count   int        `xml:"count,attr"`
	Items   []emojiXML `xml:"emoji"`
}

type emojiXML struct {
	Sequence string `xml:"sequence,attr"`
	Literal  string `xml:"literal"`
	Name     string `xml:"name"`

	Group    string `xml:"group,omitempty"`
	Subgroup string `xml:"subgroup,omitempty"`
	Status   string `xml:"status,omitempty"`
	Version  string `xml:"version,omitempty"`

	Shortcodes []string `xml:"shortcode,omitempty"`
	Emoticons  []string `xml:"emoticon,omitempty"`
}

// EncodeXML 生成目录的 XML 形态。
// 规则：输出结构稳定（字段缺失时省略元素，但 literal/name 恒出现）。
func EncodeXML(entries []domain.EmojiEntry) ([]byte, error) {
	doc := catalogXML{Count: len(entries), Items: make([]emojiXML, 0, len(entries))}
	for _, e := range entries {
		doc.Items = append(doc.Items, emojiXML{
			Sequence:   e.Sequence,
			Literal:    e.Literal,
			Name:       e.Name,
			Group:      e.Group,
			Subgroup:   e.Subgroup,
			Status:     e.Status,
			Version:    e.Version,
			Shortcodes: e.Shortcodes,
			Emoticons:  e.Emoticons,
		})
	}

	b, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	// 约定：输出带 standalone="yes" 的 XML 头，便于下游解析器直接消费。
	const header = `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>` + "\n"
	return append([]byte(header), b...), nil
}

type catalogJSON struct {
	Count  int                 `json:"count"`
	Emojis []domain.EmojiEntry `json:"emojis"`
}

// EncodeJSON 生成目录的 JSON 形态（与 XML 同一份数据，结构对齐）。
func EncodeJSON(entries []domain.EmojiEntry) ([]byte, error) {
	b, err := json.MarshalIndent(catalogJSON{Count: len(entries), Emojis: entries}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Write 把目录的两种形态原子写入 dir。
func Write(dir string, entries []domain.EmojiEntry) error {
	xb, err := EncodeXML(entries)
	if err != nil {
		return fmt.Errorf("XML 编码失败：%w", err)
	}
	jb, err := EncodeJSON(entries)
	if err != nil {
		return fmt.Errorf("JSON 编码失败：%w", err)
	}
	if err := fsx.WriteFileAtomic(dir, FileXML, xb); err != nil {
		return err
	}
	return fsx.WriteFileAtomic(dir, FileJSON, jb)
}
