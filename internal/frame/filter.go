package frame

// DefaultMedianSize はメディアンフィルタの既定カーネルサイズ
const DefaultMedianSize = 3

// MedianFilter はノイズ除去用のメディアンフィルタを適用した新しいフレームを返す
//
// 元のフレームは変更しない。端は最近傍の画素で補う。
// size は奇数に切り上げられ、1以下の場合は単純なコピーになる。
func MedianFilter(f *Frame, size int) *Frame {
	out := f.Clone()
	if size <= 1 || f.Width == 0 || f.Height == 0 {
		return out
	}
	if size%2 == 0 {
		size++
	}
	r := size / 2
	window := make([]uint16, 0, size*size)

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			window = window[:0]
			for dy := -r; dy <= r; dy++ {
				yy := clampIndex(y+dy, f.Height)
				for dx := -r; dx <= r; dx++ {
					xx := clampIndex(x+dx, f.Width)
					window = append(window, f.Pix[yy*f.Width+xx])
				}
			}
			out.Pix[y*f.Width+x] = median(window)
		}
	}
	return out
}

// ApplyThreshold はフレーム自身の最大値の percent% 未満の画素を0にする
//
// f をその場で書き換えるため、生データには使わないこと。
func ApplyThreshold(f *Frame, percent float64) {
	if percent <= 0 {
		return
	}
	_, hi := f.Bounds()
	limit := float64(hi) * percent / 100
	for i, v := range f.Pix {
		if float64(v) < limit {
			f.Pix[i] = 0
		}
	}
}

// median は小さな窓の中央値を挿入ソートで求める
func median(w []uint16) uint16 {
	for i := 1; i < len(w); i++ {
		v := w[i]
		j := i - 1
		for j >= 0 && w[j] > v {
			w[j+1] = w[j]
			j--
		}
		w[j+1] = v
	}
	return w[len(w)/2]
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
