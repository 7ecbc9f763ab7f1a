package archive

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// PreviewCameraName はファイル名プレビューで使うカメラ名
const PreviewCameraName = "CameraName"

// Extension は設定に応じた拡張子を返す
func (s Settings) Extension() string {
	if s.LowRes {
		return ".png"
	}
	if s.Format == FormatFITS {
		return ".fits"
	}
	return ".tiff"
}

// Filename は保存ファイル名を生成する
//
// {prefix_}YYYYMMDD_HHMMSS_{カメラ名}{_suffix}{_shot}{拡張子}
// ショット番号は ShotNumber が有効な場合のみ付加する。
func Filename(s Settings, t time.Time, cameraName string, shot int) string {
	var b strings.Builder
	if s.Prefix != "" {
		b.WriteString(s.Prefix)
		b.WriteByte('_')
	}
	b.WriteString(t.Format("20060102_150405"))
	b.WriteByte('_')
	b.WriteString(sanitize(cameraName))
	if s.Suffix != "" {
		b.WriteByte('_')
		b.WriteString(s.Suffix)
	}
	if s.ShotNumber {
		fmt.Fprintf(&b, "_%d", shot)
	}
	b.WriteString(s.Extension())
	return b.String()
}

// Preview は設定画面向けのファイル名プレビューを返す
func Preview(s Settings, t time.Time) string {
	return Filename(s, t, PreviewCameraName, s.ShotNumberOffset)
}

// DailyDirectory は全カメラ一括保存用の日付サブディレクトリを返す
func DailyDirectory(base string, t time.Time) string {
	return filepath.Join(base, t.Format("2006_01_02"))
}

// sanitize はカメラ名からパス区切りを取り除く
func sanitize(name string) string {
	if name == "" {
		return "camera"
	}
	return strings.NewReplacer("/", "_", "\\", "_").Replace(name)
}
