package session

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"beamview/internal/camera"
)

// SetName はカメラのユーザー定義名を設定する
func (s *Session) SetName(name string) {
	s.cam.SetName(name)
}

// SetGain はゲインを設定し、ハードウェアから読み直した値を返す
//
// 範囲外の値はハードウェアに拒否され、元の値が返る。
func (s *Session) SetGain(value int) int {
	if err := s.cam.SetGain(value); err != nil {
		s.logParameterError("gain", err)
	}
	return s.cam.Gain()
}

// SetExposure は露光時間 (ms) を設定し、ハードウェアから読み直した値を返す
func (s *Session) SetExposure(ms float64) float64 {
	if err := s.cam.SetExposure(ms); err != nil {
		s.logParameterError("exposure", err)
	}
	return s.cam.Exposure()
}

func (s *Session) logParameterError(param string, err error) {
	if errors.Is(err, camera.ErrOutOfRange) {
		s.logger.Debug("範囲外の値を無視しました", zap.String("param", param), zap.Error(err))
		return
	}
	s.logger.Warn("パラメータの設定に失敗しました", zap.String("param", param), zap.Error(err))
}

// SetRegion は取得領域 [minX, maxX) × [minY, maxY) をクランプしてカメラに書き込む
//
// 取得中の場合は一旦停止し、書き込み後に再開する。
// 返す領域はハードウェアから読み直した値。
func (s *Session) SetRegion(minX, minY, maxX, maxY int) (camera.Region, error) {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()

	running := s.state == StateRunning
	if running {
		if err := s.cam.StopGrabbing(); err != nil {
			return s.Region(), fmt.Errorf("取得の停止に失敗: %w", err)
		}
	}

	target := camera.ClampRegion(minX, minY, maxX, maxY, s.cam.MaxWidth(), s.cam.MaxHeight())
	region, commitErr := camera.CommitRegion(s.cam, target)

	// 古い領域のフレームは表示しない
	s.slot.TryConsume()

	s.mu.Lock()
	s.region = region
	s.mu.Unlock()

	if commitErr != nil {
		s.logger.Warn("取得領域の書き込みに失敗しました", zap.Any("target", target), zap.Error(commitErr))
	} else {
		s.logger.Info("取得領域を変更しました", zap.Any("region", region))
	}

	if running {
		if err := s.startGrabbing(); err != nil {
			s.state = StateStopped
			go s.notifyState(StateStopped)
			return region, err
		}
	}
	return region, commitErr
}

// ResetRegion は取得領域をセンサー全体に戻す
func (s *Session) ResetRegion() (camera.Region, error) {
	return s.SetRegion(0, 0, s.cam.MaxWidth(), s.cam.MaxHeight())
}

// Region は現在の取得領域を返す
func (s *Session) Region() camera.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region
}

// SetProcessing は再描画時の処理設定を変更する
func (s *Session) SetProcessing(p Processing) error {
	if math.IsNaN(p.ThresholdPercent) || p.ThresholdPercent < 0 || p.ThresholdPercent > 100 {
		return fmt.Errorf("%w: しきい値は0〜100%%の範囲で指定してください: %v", ErrInvalidProcessing, p.ThresholdPercent)
	}
	if p.Calibration && !(p.CalibrationScale > 0) {
		return fmt.Errorf("%w: 校正値は正の値で指定してください: %v", ErrInvalidProcessing, p.CalibrationScale)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = p
	return nil
}

// Processing は現在の処理設定を返す
func (s *Session) Processing() Processing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// RequestRange は表示レンジの変更を要求する。次の再描画で適用される
func (s *Session) RequestRange(mode RangeMode, levels Levels) error {
	switch mode {
	case RangeAuto, RangeReset:
	case RangeManual:
		if !(levels.Max > levels.Min) {
			return fmt.Errorf("%w: min=%v max=%v", ErrInvalidRange, levels.Min, levels.Max)
		}
	default:
		return fmt.Errorf("%w: 不明なモード %q", ErrInvalidRange, mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingRange = &rangeRequest{mode: mode, levels: levels}
	return nil
}

// Levels は現在の表示レンジを返す
func (s *Session) Levels() Levels {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels
}

// AddCrosshair は十字線を追加する
func (s *Session) AddCrosshair(x, y float64) Crosshair {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCrossID++
	c := Crosshair{ID: s.nextCrossID, X: x, Y: y}
	s.crosshairs = append(s.crosshairs, c)
	return c
}

// MoveCrosshair は十字線を移動する。移動モードが無効なら ErrNotMovable
func (s *Session) MoveCrosshair(id int, x, y float64) (Crosshair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.crossMode.Movable {
		return Crosshair{}, ErrNotMovable
	}
	for i := range s.crosshairs {
		if s.crosshairs[i].ID == id {
			s.crosshairs[i].X = x
			s.crosshairs[i].Y = y
			return s.crosshairs[i], nil
		}
	}
	return Crosshair{}, fmt.Errorf("%w: %d", ErrCrosshairNotFound, id)
}

// RemoveCrosshair は十字線を削除する
func (s *Session) RemoveCrosshair(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.crosshairs {
		if s.crosshairs[i].ID == id {
			s.crosshairs = append(s.crosshairs[:i], s.crosshairs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrCrosshairNotFound, id)
}

// SetCrosshairMode は十字線の操作モードを設定する
func (s *Session) SetCrosshairMode(mode CrosshairMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crossMode = mode
}
