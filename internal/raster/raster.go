package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/nfnt/resize"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/pubby-club/emojis/internal/domain"
	"github.com/pubby-club/emojis/internal/infra/fsx"
)

// Options 是转换例程的只读配置（池构造时注入，所有 worker 安全共享）。
type Options struct {
	Size   int    // 正方形边长
	Format string // "webp" | "png"

	// webp 编码参数；png 时忽略。
	Quality  float32 // 0-100
	Lossless bool
	Exact    bool // 保留完全透明像素的 RGB 值（拼合 sprite 时边缘更干净）
}

// Validate 做 fail-fast 校验（必须发生在任何 worker 启动之前）。
func (o Options) Validate() error {
	if o.Size < 1 {
		return fmt.Errorf("size 必须 > 0，实际是 %d", o.Size)
	}
	switch o.Format {
	case "webp", "png":
	default:
		return fmt.Errorf("format 只能是 webp 或 png，实际是 %q", o.Format)
	}
	if o.Quality < 0 || o.Quality > 100 {
		return fmt.Errorf("quality 必须在 [0, 100]，实际是 %v", o.Quality)
	}
	return nil
}

// Convert 把一个输入文件（.svg/.png）栅格化为 Size×Size 的正方形图像：
// 保持纵横比缩放、透明背景、居中，然后按 Format 编码并原子写入 OutputPath。
//
// 约束：
// - 失败（输入损坏、格式不支持、编码器拒绝）以 error 返回，绝不 panic
// - 输出要么完整存在、要么不存在（fsx 原子写入）
func Convert(item domain.WorkItem, o Options) (domain.OutputMeta, error) {
	if err := o.Validate(); err != nil {
		return domain.OutputMeta{}, err
	}

	var (
		canvas *image.RGBA
		err    error
	)
	switch ext := strings.ToLower(filepath.Ext(item.InputPath)); ext {
	case ".svg":
		canvas, err = renderSVG(item.InputPath, o.Size)
	case ".png":
		canvas, err = renderRaster(item.InputPath, o.Size)
	default:
		return domain.OutputMeta{}, fmt.Errorf("不支持的输入格式：%q", ext)
	}
	if err != nil {
		return domain.OutputMeta{}, err
	}

	var buf bytes.Buffer
	switch o.Format {
	case "webp":
		err = webp.Encode(&buf, canvas, &webp.Options{
			Lossless: o.Lossless,
			Quality:  o.Quality,
			Exact:    o.Exact,
		})
	case "png":
		err = png.Encode(&buf, canvas)
	}
	if err != nil {
		return domain.OutputMeta{}, fmt.Errorf("编码失败（%s）：%w", o.Format, err)
	}

	dir, name := filepath.Split(item.OutputPath)
	if err := fsx.WriteFileAtomic(filepath.Clean(dir), name, buf.Bytes()); err != nil {
		return domain.OutputMeta{}, err
	}

	return domain.OutputMeta{
		Format: o.Format,
		Width:  o.Size,
		Height: o.Size,
		Bytes:  int64(buf.Len()),
	}, nil
}

// renderSVG 解析并栅格化 SVG：viewBox 等比映射进 size×size 的透明画布。
func renderSVG(path string, size int) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	icon, err := oksvg.ReadIconStream(f)
	if err != nil {
		return nil, fmt.Errorf("SVG 解析失败：%w", err)
	}

	w, h := icon.ViewBox.W, icon.ViewBox.H
	if w <= 0 || h <= 0 {
		return nil, errors.New("SVG viewBox 尺寸无效")
	}

	// 等比缩放 + 居中（transparent letterbox）。
	scale := float64(size) / w
	if s := float64(size) / h; s < scale {
		scale = s
	}
	tw, th := w*scale, h*scale
	tx := (float64(size) - tw) / 2
	ty := (float64(size) - th) / 2
	icon.SetTarget(tx, ty, tw, th)

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1)
	return img, nil
}

// renderRaster 解码位图输入并做等比 bicubic 缩放，再居中绘制到透明画布。
func renderRaster(path string, size int) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("图片解码失败：%w", err)
	}

	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}

	scale := float64(size) / float64(b.Dx())
	if s := float64(size) / float64(b.Dy()); s < scale {
		scale = s
	}
	fw := int(float64(b.Dx())*scale + 0.5)
	fh := int(float64(b.Dy())*scale + 0.5)
	if fw < 1 {
		fw = 1
	}
	if fh < 1 {
		fh = 1
	}

	scaled := resize.Resize(uint(fw), uint(fh), src, resize.Bicubic)

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	ox := (size - fw) / 2
	oy := (size - fh) / 2
	draw.Draw(img, image.Rect(ox, oy, ox+fw, oy+fh), scaled, scaled.Bounds().Min, draw.Over)
	return img, nil
}
