package camera

import (
	"errors"
	"fmt"
)

// ClampRegion は要求された範囲 [minX, maxX) × [minY, maxY) をセンサー範囲に収める
//
// min はそれぞれ [0, max-4] に、max は min+4 以上かつセンサー最大値以下に丸める。
func ClampRegion(minX, minY, maxX, maxY, maxWidth, maxHeight int) Region {
	minX, maxX = clampAxis(minX, maxX, maxWidth)
	minY, maxY = clampAxis(minY, maxY, maxHeight)
	return Region{
		OffsetX: minX,
		OffsetY: minY,
		Width:   maxX - minX,
		Height:  maxY - minY,
	}
}

func clampAxis(lo, hi, limit int) (int, int) {
	if lo < 0 {
		lo = 0
	} else if lo > limit-MinDimension {
		lo = limit - MinDimension
	}

	if hi-lo < MinDimension {
		hi = lo + MinDimension
	} else if hi > limit {
		hi = limit
	}
	return lo, hi
}

// CommitRegion は取得領域をカメラに書き込み、ハードウェアから読み直した値を返す
//
// 各軸について、オフセットが増える場合はサイズ→オフセット、それ以外は
// オフセット→サイズの順に書き込む。どちらの順序でも途中の状態が
// センサー範囲を超えることはない。
func CommitRegion(cam Camera, target Region) (Region, error) {
	var errs []error

	if err := commitAxis(cam.OffsetX(), target.OffsetX, target.Width, cam.SetOffsetX, cam.SetWidth); err != nil {
		errs = append(errs, fmt.Errorf("X軸の設定に失敗: %w", err))
	}
	if err := commitAxis(cam.OffsetY(), target.OffsetY, target.Height, cam.SetOffsetY, cam.SetHeight); err != nil {
		errs = append(errs, fmt.Errorf("Y軸の設定に失敗: %w", err))
	}

	// ハードウェアが黙って丸めることがあるため常に読み直す
	return ReadRegion(cam), errors.Join(errs...)
}

func commitAxis(current, offset, size int, setOffset, setSize func(int) error) error {
	if offset > current {
		if err := setSize(size); err != nil {
			return err
		}
		return setOffset(offset)
	}
	if err := setOffset(offset); err != nil {
		return err
	}
	return setSize(size)
}
