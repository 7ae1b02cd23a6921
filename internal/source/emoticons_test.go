package source

import "testing"

const emoticonsSample = `<!DOCTYPE html>
<html><body>
<h2>Sidelooking</h2>
<table class="wikitable">
<tr><th>Icon</th><th>Emoji</th><th>Meaning</th></tr>
<tr><td>:-) :) =)</td><td>🙂</td><td>Smiley or happy face</td></tr>
<tr><td>:-D :D</td><td>😀 😃</td><td>Laughing, big grin</td></tr>
<tr><td>;-) ;)</td><td>😉</td><td>Wink</td></tr>
<tr><td>only words here</td><td>also words</td><td>no emoji row</td></tr>
</table>
<table>
<tr><td>&lt;3</td><td>❤️</td><td>Heart</td></tr>
</table>
</body></html>`

func TestEmoticonsParse(t *testing.T) {
	frag, err := (Emoticons{}).Parse([]byte(emoticonsSample))
	if err != nil {
		t.Fatalf("Parse 不应失败：%v", err)
	}
	m := frag.Emoticons

	got := m["🙂"]
	if len(got) != 3 || got[0] != ":)" || got[1] != ":-)" || got[2] != "=)" {
		t.Fatalf("🙂 的颜文字应排序：%v", got)
	}

	// 一行多个字面量：两个都拿到同一组颜文字
	if len(m["😀"]) != 2 || len(m["😃"]) != 2 {
		t.Fatalf("多字面量行未展开：%v / %v", m["😀"], m["😃"])
	}

	// 第二张表（无 class）也要扫
	if len(m["❤️"]) != 1 || m["❤️"][0] != "<3" {
		t.Fatalf("第二张表未解析：%v", m["❤️"])
	}

	if _, ok := m["also"]; ok {
		t.Fatal("纯文字行不应产出映射")
	}
}

func TestEmoticonsParse_NoTables(t *testing.T) {
	if _, err := (Emoticons{}).Parse([]byte("<html><body><p>nothing</p></body></html>")); err == nil {
		t.Fatal("无可解析表格应报错")
	}
}

func TestEmoticonsFetch_NoURL(t *testing.T) {
	if _, err := (Emoticons{}).Fetch(nil, nil); err == nil {
		t.Fatal("未配置 URL 时 Fetch 应报错")
	}
}

func TestEmoticonTokenFilter(t *testing.T) {
	yes := []string{":-)", ";)", "<3", ":'(", "^_^"}
	for _, s := range yes {
		if !isEmoticonToken(s) {
			t.Fatalf("%q 应判为颜文字", s)
		}
	}
	no := []string{"", "x", "Laughing", "XD", "有中文", ": )"}
	for _, s := range no {
		if isEmoticonToken(s) {
			t.Fatalf("%q 不应判为颜文字", s)
		}
	}
}
