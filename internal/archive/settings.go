package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
)

// Format はフル解像度保存時の画像フォーマット
type Format string

const (
	FormatTIFF Format = "tiff"
	FormatFITS Format = "fits"
)

// Settings は保存設定
type Settings struct {
	Enabled           bool    `json:"archive_mode" yaml:"archive_mode"`
	LowRes            bool    `json:"low_res_mode" yaml:"low_res_mode"`
	IntervalSeconds   float64 `json:"archive_interval_seconds" yaml:"archive_interval_seconds" validate:"gte=0"`
	Directory         string  `json:"archive_directory" yaml:"archive_directory" validate:"required"`
	ShotNumber        bool    `json:"archive_shot_number" yaml:"archive_shot_number"`
	ShotNumberOffset  int     `json:"archive_shot_number_offset" yaml:"archive_shot_number_offset" validate:"gte=0"`
	Prefix            string  `json:"archive_prefix" yaml:"archive_prefix" validate:"excludesall=/\\"`
	Suffix            string  `json:"archive_suffix" yaml:"archive_suffix" validate:"excludesall=/\\"`
	Format            Format  `json:"archive_format" yaml:"archive_format" validate:"omitempty,oneof=tiff fits"`
	DailySubdirectory bool    `json:"daily_subdirectory" yaml:"daily_subdirectory"`
}

// DefaultSettings はデフォルトの保存設定を返す
func DefaultSettings() Settings {
	return Settings{
		Enabled:           false,
		IntervalSeconds:   300,
		Directory:         defaultDirectory(),
		ShotNumber:        false,
		Format:            FormatTIFF,
		DailySubdirectory: true,
	}
}

func defaultDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "nir_archive"
	}
	return filepath.Join(home, "nir_archive")
}

// Interval は最小保存間隔を返す
func (s Settings) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds * float64(time.Second))
}

var validate = validator.New()

// Validate は設定を検証する
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("保存設定が不正です: %w", err)
	}
	return nil
}

// Policy は全カメラで共有される保存設定
//
// 書き込みは Set による差し替えのみで、読み出しはロックを取らない。
type Policy struct {
	current atomic.Pointer[Settings]
}

// NewPolicy は新しいPolicyを作成する
func NewPolicy(initial Settings) *Policy {
	p := &Policy{}
	p.current.Store(&initial)
	return p
}

// Load は現在の設定を返す
func (p *Policy) Load() Settings {
	return *p.current.Load()
}

// Swap は設定を検証してから差し替え、以前の設定を返す
func (p *Policy) Swap(next Settings) (Settings, error) {
	if err := next.Validate(); err != nil {
		return p.Load(), err
	}
	prev := p.current.Swap(&next)
	return *prev, nil
}
