// Package fetch 负责从 GitHub 拉取 SVG 图标集：
// 解析 source spec -> 下载 zipball -> 按扩展名/符号链接位过滤 -> 平铺落盘。
package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/pubby-club/emojis/internal/infra/fsx"
	"github.com/pubby-club/emojis/internal/infra/httpx"
)

// maxEntryBytes 限制单个 zip 条目解压后的大小（SVG 图标远小于该值；超过视为异常输入）。
const maxEntryBytes = 16 << 20

// Spec 描述一个图标集来源（构造后只读）。
type Spec struct {
	Owner string
	Repo  string
	Ref   string // 默认 "HEAD"（codeload 会解析为默认分支）
	Dir   string // 仓库内子目录（空 = 整个仓库）；'/' 分隔、已 Clean

	// Raw 保留用户书写的原文（用于 report 的 name 字段）。
	Raw string
}

// ParseSpec 解析 source spec。支持两种写法：
//   - 简写：owner/repo[@ref][:subdir]（例如 "googlefonts/noto-emoji@main:svg"）
//   - 完整 URL：https://github.com/owner/repo[/tree/<ref>[/<subdir>]]
func ParseSpec(s string) (Spec, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Spec{}, errors.New("source 不能为空")
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return parseURLSpec(raw)
	}

	rest := raw
	dir := ""
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		dir = rest[i+1:]
		rest = rest[:i]
	}

	ref := ""
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		ref = rest[i+1:]
		rest = rest[:i]
	}

	owner, repo, ok := strings.Cut(rest, "/")
	if !ok {
		return Spec{}, fmt.Errorf("source 必须形如 owner/repo[@ref][:subdir]：%q", raw)
	}
	return newSpec(raw, owner, repo, ref, dir)
}

func parseURLSpec(raw string) (Spec, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Spec{}, fmt.Errorf("source URL 无效：%w", err)
	}
	host := strings.ToLower(u.Host)
	if host != "github.com" && host != "www.github.com" {
		return Spec{}, fmt.Errorf("source URL 必须指向 github.com：%q", raw)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return Spec{}, fmt.Errorf("source URL 缺少 owner/repo：%q", raw)
	}
	owner, repo := parts[0], strings.TrimSuffix(parts[1], ".git")

	ref, dir := "", ""
	if len(parts) > 2 {
		if parts[2] != "tree" || len(parts) < 4 {
			return Spec{}, fmt.Errorf("source URL 只支持 /tree/<ref>[/<subdir>] 形态：%q", raw)
		}
		ref = parts[3]
		dir = strings.Join(parts[4:], "/")
	}
	return newSpec(raw, owner, repo, ref, dir)
}

func newSpec(raw, owner, repo, ref, dir string) (Spec, error) {
	owner = strings.TrimSpace(owner)
	repo = strings.TrimSpace(repo)
	if owner == "" || repo == "" || strings.ContainsAny(owner+repo, " /\\") {
		return Spec{}, fmt.Errorf("owner/repo 无效：%q", raw)
	}

	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = "HEAD"
	}

	dir = strings.Trim(strings.TrimSpace(dir), "/")
	if dir != "" {
		dir = path.Clean(dir)
		if dir == "." || strings.HasPrefix(dir, "..") {
			return Spec{}, fmt.Errorf("subdir 无效：%q", raw)
		}
	}

	return Spec{Owner: owner, Repo: repo, Ref: ref, Dir: dir, Raw: raw}, nil
}

// ZipURL 返回该来源的 zipball 下载地址。
func (s Spec) ZipURL() string {
	return "https://codeload.github.com/" + url.PathEscape(s.Owner) + "/" +
		url.PathEscape(s.Repo) + "/zip/" + url.PathEscape(s.Ref)
}

// Download 拉取整个 zipball 到内存（图标集 zip 通常在几十 MB 以内）。
func Download(ctx context.Context, c *http.Client, s Spec) ([]byte, error) {
	return httpx.Get(ctx, c, s.ZipURL())
}

// Entry 是一个被保留的图标文件（已平铺为 basename）。
type Entry struct {
	Name string
	Data []byte
}

// ExtractIcons 从 zipball 中筛出 subdir 下的 .svg 常规文件。
//
// 规则（与下载来源的行为保持一致）：
// - zipball 的单一根目录（"repo-ref/"）被剥掉
// - 目录条目跳过；选中范围内（subdir 下 .svg）的符号链接条目跳过并计入 skipped
// - 保留条目平铺为 basename；basename 冲突视为输入布局错误（fail fast）
// - 返回的 entries 按 Name 排序（稳定输出）
func ExtractIcons(zipData []byte, subdir string) (entries []Entry, skipped int, err error) {
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return nil, 0, fmt.Errorf("zip 读取失败：%w", err)
	}

	prefix := ""
	if subdir = strings.Trim(subdir, "/"); subdir != "" {
		prefix = subdir + "/"
	}

	from := make(map[string]string) // basename -> 仓库内来源路径（冲突报错时可解释）
	for _, f := range zr.File {
		// 剥掉 zipball 的根目录；没有 '/' 的顶层条目不属于仓库内容。
		i := strings.IndexByte(f.Name, '/')
		if i < 0 {
			continue
		}
		rel := f.Name[i+1:]
		if rel == "" || strings.HasSuffix(rel, "/") || f.FileInfo().IsDir() {
			continue
		}

		if prefix != "" && !strings.HasPrefix(rel, prefix) {
			continue
		}
		if !strings.EqualFold(path.Ext(rel), ".svg") {
			continue
		}

		if f.Mode()&fs.ModeSymlink != 0 {
			skipped++
			continue
		}

		base := path.Base(rel)
		if prev, ok := from[base]; ok {
			return nil, 0, fmt.Errorf("平铺后文件名冲突：%q（来自 %q 与 %q）", base, prev, rel)
		}
		from[base] = rel

		rc, err := f.Open()
		if err != nil {
			return nil, 0, fmt.Errorf("zip 条目 %q 打开失败：%w", rel, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
		rc.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("zip 条目 %q 读取失败：%w", rel, err)
		}
		if len(data) > maxEntryBytes {
			return nil, 0, fmt.Errorf("zip 条目 %q 超过大小上限", rel)
		}

		entries = append(entries, Entry{Name: base, Data: data})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, skipped, nil
}

// Save 把条目原子写入 dir（逐个 temp+rename；目录由 fsx 确保存在）。
func Save(dir string, entries []Entry) error {
	for _, e := range entries {
		if err := fsx.WriteFileAtomic(dir, e.Name, e.Data); err != nil {
			return fmt.Errorf("写入 %q 失败：%w", e.Name, err)
		}
	}
	return nil
}
