package source

import (
	"strings"
	"testing"
)

const unicodeSample = `# emoji-test.txt
# Version: 16.0
#
# group: Smileys & Emotion

# subgroup: face-smiling
1F600                                                  ; fully-qualified     # 😀 E1.0 grinning face
1F636 200D 1F32B FE0F                                  ; fully-qualified     # 😶‍🌫️ E13.1 face in clouds
1F636 200D 1F32B                                       ; minimally-qualified # 😶‍🌫 E13.1 face in clouds

# group: Component

# subgroup: skin-tone
1F3FB                                                  ; component           # 🏻 E1.0 light skin tone

# group: Symbols

# subgroup: keycap
0023 FE0F 20E3                                         ; fully-qualified     # #️⃣ E0.6 keycap: #
`

func TestUnicodeParse(t *testing.T) {
	frag, err := (Unicode{}).Parse([]byte(unicodeSample))
	if err != nil {
		t.Fatalf("Parse 不应失败：%v", err)
	}
	es := frag.Entries
	if len(es) != 5 {
		t.Fatalf("条目数 = %d，期望 5", len(es))
	}

	first := es[0]
	if first.Sequence != "1F600" || first.Literal != "😀" {
		t.Fatalf("首条 sequence/literal 不符：%+v", first)
	}
	if first.Group != "Smileys & Emotion" || first.Subgroup != "face-smiling" {
		t.Fatalf("分组状态未跟踪：%+v", first)
	}
	if first.Status != "fully-qualified" || first.Version != "1.0" || first.Name != "grinning face" {
		t.Fatalf("status/version/name 不符：%+v", first)
	}

	// ZWJ 序列与限定级别
	if es[1].Sequence != "1F636 200D 1F32B FE0F" || es[2].Status != "minimally-qualified" {
		t.Fatalf("ZWJ/限定级别解析不符：%+v / %+v", es[1], es[2])
	}

	// 切换 group 后 subgroup 应被清空再更新
	if es[3].Group != "Component" || es[3].Subgroup != "skin-tone" || es[3].Status != "component" {
		t.Fatalf("Component 条目不符：%+v", es[3])
	}

	// 名字里含 '#' 的 keycap 不应被当作注释截断
	last := es[4]
	if last.Sequence != "0023 FE0F 20E3" || last.Name != "keycap: #" || last.Version != "0.6" {
		t.Fatalf("keycap 条目不符：%+v", last)
	}
}

func TestUnicodeParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"空输入":      "",
		"只有注释":     "# group: X\n# subgroup: y\n",
		"缺 status": "1F600 # 😀 E1.0 grinning face\n",
		"码点非法":     "ZZZZ ; fully-qualified # x E1.0 x\n",
	}
	for name, in := range cases {
		if _, err := (Unicode{}).Parse([]byte(in)); err == nil {
			t.Fatalf("%s：Parse 应失败", name)
		}
	}
}

func TestUnicodeName(t *testing.T) {
	if got := (Unicode{}).Name(); got != "unicode" {
		t.Fatalf("Name = %q", got)
	}
	if !strings.HasPrefix(unicodeURL, "https://unicode.org/") {
		t.Fatalf("数据源应指向 unicode.org：%q", unicodeURL)
	}
}
