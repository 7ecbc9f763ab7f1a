package frame

import "math"

// Intensity はライブ表示用の強度情報
type Intensity struct {
	Max        uint16  `json:"max"`         // 最大画素値
	MaxPercent float64 `json:"max_percent"` // フルスケールに対する最大値の割合 (%)
	Saturated  int     `json:"saturated"`   // 飽和画素数
	Total      uint64  `json:"total"`       // 総強度
}

// MeasureIntensity は飽和画素数と総強度を計算する
func MeasureIntensity(f *Frame) Intensity {
	full := f.FullScale()
	var in Intensity
	for _, v := range f.Pix {
		in.Total += uint64(v)
		if v > in.Max {
			in.Max = v
		}
		if v >= full {
			in.Saturated++
		}
	}
	if full > 0 {
		in.MaxPercent = 100 * float64(in.Max) / float64(full)
	}
	return in
}

// Moments はビームの重心と2次モーメント幅
type Moments struct {
	CentroidX float64 `json:"centroid_x"`
	CentroidY float64 `json:"centroid_y"`
	SigmaX    float64 `json:"sigma_x"`
	SigmaY    float64 `json:"sigma_y"`
	Valid     bool    `json:"valid"` // 総強度が0の場合は false
}

// ComputeMoments は強度で重み付けした重心と幅を計算する
//
// フレームを総和で割って確率分布とみなし、センサー座標
// (OffsetX + 列, OffsetY + 行) 上で Σx·p と sqrt(Σ(x-cx)²·p) を求める。
// scale は1画素あたりの物理単位で、結果はすべて scale 倍される。
func ComputeMoments(f *Frame, scale float64) Moments {
	var sum float64
	for _, v := range f.Pix {
		sum += float64(v)
	}
	if sum == 0 {
		return Moments{}
	}

	var cx, cy float64
	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*f.Width : (y+1)*f.Width]
		py := float64(f.OffsetY + y)
		for x, v := range row {
			if v == 0 {
				continue
			}
			p := float64(v) / sum
			cx += float64(f.OffsetX+x) * p
			cy += py * p
		}
	}

	var vx, vy float64
	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*f.Width : (y+1)*f.Width]
		dy := float64(f.OffsetY+y) - cy
		for x, v := range row {
			if v == 0 {
				continue
			}
			p := float64(v) / sum
			dx := float64(f.OffsetX+x) - cx
			vx += dx * dx * p
			vy += dy * dy * p
		}
	}

	return Moments{
		CentroidX: cx * scale,
		CentroidY: cy * scale,
		SigmaX:    math.Sqrt(vx) * scale,
		SigmaY:    math.Sqrt(vy) * scale,
		Valid:     true,
	}
}
