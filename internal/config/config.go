package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"beamview/internal/archive"
	"beamview/internal/camera"
	"beamview/internal/fleet"
	"beamview/internal/telemetry"
)

// ConfigEnv は設定ファイルのパスを指定する環境変数
const ConfigEnv = "BEAMVIEW_CONFIG"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Camera    CameraConfig       `yaml:"camera"`
	Pacing    fleet.PacingConfig `yaml:"pacing"`
	Archive   archive.Settings   `yaml:"archive"`
	Telemetry telemetry.Config   `yaml:"telemetry"`
	Log       LogConfig          `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Backend       string             `yaml:"backend"`        // gige / emulated
	EmulatedCount int                `yaml:"emulated_count"` // -debug 時のエミュレートカメラ台数
	Trigger       camera.TriggerMode `yaml:"trigger"`        // セッション作成時に固定
	PacketSize    int                `yaml:"packet_size"`    // GigEパケットサイズ（バイト）
	Binning       int                `yaml:"binning"`
	RedrawPeriod  time.Duration      `yaml:"redraw_period"` // 共有再描画スケジューラーの周期
	AutoStart     bool               `yaml:"auto_start"`    // 追加時に取得を開始する
	OpenOnStartup []int              `yaml:"open_on_startup"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level       string `yaml:"level"`       // debug / info / warn / error
	Development bool   `yaml:"development"` // コンソール向けの出力形式
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Backend:       camera.BackendGigE,
			EmulatedCount: 20,
			Trigger:       camera.TriggerFreerun,
			PacketSize:    1200,
			Binning:       1,
			RedrawPeriod:  50 * time.Millisecond,
			AutoStart:     true,
		},
		Pacing:    fleet.DefaultPacingConfig(),
		Archive:   archive.DefaultSettings(),
		Telemetry: telemetry.DefaultConfig(),
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load は設定を読み込む
//
// デフォルト値、BEAMVIEW_CONFIG で指定された YAML ファイル、環境変数の順に上書きする。
func Load() (*Config, error) {
	return LoadFile(os.Getenv(ConfigEnv))
}

// LoadFile は指定された YAML ファイルから設定を読み込む。path が空ならファイルは読まない
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.Archive.Directory = expandHome(cfg.Archive.Directory)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Backend = getEnvOrDefault("BEAMVIEW_CAMERA_BACKEND", c.Camera.Backend)
	c.Camera.EmulatedCount = getEnvAsIntOrDefault("BEAMVIEW_EMULATED_CAMERAS", c.Camera.EmulatedCount)
	c.Camera.PacketSize = getEnvAsIntOrDefault("BEAMVIEW_PACKET_SIZE", c.Camera.PacketSize)
	c.Archive.Directory = getEnvOrDefault("BEAMVIEW_ARCHIVE_DIR", c.Archive.Directory)
	c.Log.Level = getEnvOrDefault("BEAMVIEW_LOG_LEVEL", c.Log.Level)

	if broker := os.Getenv("BEAMVIEW_MQTT_BROKER"); broker != "" {
		c.Telemetry.Broker = broker
		c.Telemetry.Enabled = true
	}
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// カメラ設定の検証
	if c.Camera.Backend == "" {
		return fmt.Errorf("カメラバックエンドが指定されていません")
	}
	if c.Camera.EmulatedCount < 0 {
		return fmt.Errorf("エミュレートカメラ台数が負の値です: %d", c.Camera.EmulatedCount)
	}
	if !c.Camera.Trigger.Valid() {
		return fmt.Errorf("無効なトリガー方式: %s", c.Camera.Trigger)
	}
	if c.Camera.PacketSize <= 0 {
		return fmt.Errorf("無効なパケットサイズ: %d", c.Camera.PacketSize)
	}
	if c.Camera.Binning < 1 {
		return fmt.Errorf("無効なビニング係数: %d", c.Camera.Binning)
	}
	if c.Camera.RedrawPeriod <= 0 {
		return fmt.Errorf("無効な再描画周期: %s", c.Camera.RedrawPeriod)
	}

	// ペーシング設定の検証
	if c.Pacing.HeaderOverhead < 0 || c.Pacing.MaxInterPacketDelay < 0 {
		return fmt.Errorf("ペーシング設定が負の値です: %+v", c.Pacing)
	}

	if err := c.Archive.Validate(); err != nil {
		return err
	}

	if c.Telemetry.Enabled && c.Telemetry.Broker == "" {
		return fmt.Errorf("MQTTブローカーが指定されていません")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("無効なログレベル: %s", c.Log.Level)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// FleetConfig はコーディネーター用の設定を返す
func (c *Config) FleetConfig() fleet.Config {
	return fleet.Config{
		Trigger:      c.Camera.Trigger,
		PacketSize:   c.Camera.PacketSize,
		Binning:      c.Camera.Binning,
		RedrawPeriod: c.Camera.RedrawPeriod,
		AutoStart:    c.Camera.AutoStart,
		Pacing:       c.Pacing,
	}
}

// expandHome は先頭の ~ をホームディレクトリに展開する
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
