package session

import (
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"beamview/internal/frame"
)

// Display は表示面の最新フレームと表示レンジ、更新番号を返す
//
// 更新番号は再描画のたびに増える。フレームがまだ無い場合は nil を返す。
func (s *Session) Display() (*frame.Frame, Levels, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display, s.levels, s.displaySeq
}

// RenderPNG は表示面を PNG で書き出す
func (s *Session) RenderPNG(w io.Writer) error {
	img, err := s.render()
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// RenderJPEG は表示面を JPEG で書き出す
func (s *Session) RenderJPEG(w io.Writer, quality int) error {
	img, err := s.render()
	if err != nil {
		return err
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// render は表示レンジで8bitに正規化し、十字線を重ねた画像を返す
func (s *Session) render() (*image.Gray, error) {
	s.mu.Lock()
	f := s.display
	levels := s.levels
	crosshairs := make([]Crosshair, len(s.crosshairs))
	copy(crosshairs, s.crosshairs)
	mode := s.crossMode
	s.mu.Unlock()

	if f == nil {
		return nil, ErrNoFrame
	}

	img := f.Scaled8(levels.Min, levels.Max)

	var shade uint8 = 160
	if mode.Highlight {
		shade = 255
	}
	for _, c := range crosshairs {
		// センサー座標からフレーム内座標へ
		x := int(math.Round(c.X)) - f.OffsetX
		y := int(math.Round(c.Y)) - f.OffsetY
		if x >= 0 && x < f.Width {
			for row := 0; row < f.Height; row++ {
				img.Pix[row*img.Stride+x] = shade
			}
		}
		if y >= 0 && y < f.Height {
			for col := 0; col < f.Width; col++ {
				img.Pix[y*img.Stride+col] = shade
			}
		}
	}
	return img, nil
}
