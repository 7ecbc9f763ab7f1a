package frame

import (
	"image"
	"time"
)

// Frame はモノクロカメラから取得した1枚の画像を表す
//
// 画素値は行優先で Pix に格納される。ビット深度にかかわらず uint16 で保持し、
// 値はハードウェアが出力した生の値そのまま（スケーリングしない）。
type Frame struct {
	Width     int       // 画像幅
	Height    int       // 画像高さ
	OffsetX   int       // 取得時のセンサー上のXオフセット
	OffsetY   int       // 取得時のセンサー上のYオフセット
	BitDepth  int       // 8 / 12 / 16
	Pix       []uint16  // 画素値
	Timestamp time.Time // 取得時刻
}

// New は指定サイズのゼロ埋めフレームを作成する
func New(width, height, bitDepth int) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		BitDepth: bitDepth,
		Pix:      make([]uint16, width*height),
	}
}

// At は (x, y) の画素値を返す。座標はフレーム内のローカル座標
func (f *Frame) At(x, y int) uint16 {
	return f.Pix[y*f.Width+x]
}

// Set は (x, y) の画素値を設定する
func (f *Frame) Set(x, y int, v uint16) {
	f.Pix[y*f.Width+x] = v
}

// Clone はフレームのディープコピーを返す
func (f *Frame) Clone() *Frame {
	c := *f
	c.Pix = make([]uint16, len(f.Pix))
	copy(c.Pix, f.Pix)
	return &c
}

// FullScale はビット深度で表現できる最大値を返す
func (f *Frame) FullScale() uint16 {
	if f.BitDepth <= 0 || f.BitDepth >= 16 {
		return 0xFFFF
	}
	return uint16(1<<f.BitDepth - 1)
}

// Bounds は最小値と最大値を返す
func (f *Frame) Bounds() (lo, hi uint16) {
	if len(f.Pix) == 0 {
		return 0, 0
	}
	lo, hi = f.Pix[0], f.Pix[0]
	for _, v := range f.Pix[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Image は生の画素値を保持したまま image.Image に変換する
//
// 8ビットの場合は image.Gray、それ以外は image.Gray16 を返す。
// 12ビットデータも上位ビットへシフトせずにそのまま格納する。
func (f *Frame) Image() image.Image {
	rect := image.Rect(0, 0, f.Width, f.Height)
	if f.BitDepth == 8 {
		img := image.NewGray(rect)
		for i, v := range f.Pix {
			img.Pix[i] = uint8(v)
		}
		return img
	}

	img := image.NewGray16(rect)
	for i, v := range f.Pix {
		img.Pix[2*i] = uint8(v >> 8)
		img.Pix[2*i+1] = uint8(v)
	}
	return img
}

// Scaled8 は表示レベル [lo, hi] で8ビットに正規化したグレー画像を返す
func (f *Frame) Scaled8(lo, hi float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	for i, v := range f.Pix {
		n := (float64(v) - lo) / span * 255
		switch {
		case n < 0:
			n = 0
		case n > 255:
			n = 255
		}
		img.Pix[i] = uint8(n + 0.5)
	}
	return img
}

// FromImage は image.Gray / image.Gray16 から Frame を復元する
func FromImage(img image.Image, bitDepth int) *Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy(), bitDepth)
	switch m := img.(type) {
	case *image.Gray:
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				f.Set(x, y, uint16(m.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	case *image.Gray16:
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				f.Set(x, y, m.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				f.Set(x, y, uint16(r))
			}
		}
	}
	return f
}
