package server

import (
	"time"

	"beamview/internal/camera"
	"beamview/internal/fleet"
	"beamview/internal/session"
	"beamview/internal/telemetry"
)

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RegionErrorResponse はROI変更失敗時の応答。ハードウェアから読み直した領域を含む
type RegionErrorResponse struct {
	ErrorResponse
	Region camera.Region `json:"region"`
}

// HealthResponse はヘルスチェック応答
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerInfo はサーバー情報
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StatusResponse はシステム状態応答
type StatusResponse struct {
	Status    string           `json:"status"`
	Server    ServerInfo       `json:"server"`
	Backend   string           `json:"backend"`
	Cameras   int              `json:"cameras"`
	Running   int              `json:"running"`
	Pacing    fleet.Pacing     `json:"pacing"`
	Telemetry *telemetry.Stats `json:"telemetry,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// CamerasResponse はカメラ一覧応答
type CamerasResponse struct {
	Cameras []session.Info `json:"cameras"`
}

// DevicesResponse はデバイス一覧応答
type DevicesResponse struct {
	Devices []fleet.DeviceStatus `json:"devices"`
}

// AddCameraRequest はカメラ追加リクエスト
type AddCameraRequest struct {
	Index *int `json:"index" binding:"required,gte=0"`
}

// NameRequest は名前変更リクエスト
type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

// AcquisitionRequest は取得パラメータ変更リクエスト
type AcquisitionRequest struct {
	Gain     *int     `json:"gain"`
	Exposure *float64 `json:"exposure"` // ms
}

// AcquisitionResponse はハードウェアから読み直した取得パラメータ
type AcquisitionResponse struct {
	Gain     int     `json:"gain"`
	Exposure float64 `json:"exposure"`
}

// RegionRequest はROI変更リクエスト。範囲は [min, max)
type RegionRequest struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

// RangeRequest は表示レンジ変更リクエスト
type RangeRequest struct {
	Mode session.RangeMode `json:"mode" binding:"required,oneof=auto reset manual"`
	Min  float64           `json:"min"`
	Max  float64           `json:"max"`
}

// CrosshairRequest は十字線の位置
type CrosshairRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// SnapshotResponse は一括保存の結果
type SnapshotResponse struct {
	Paths  []string `json:"paths"`
	Errors string   `json:"errors,omitempty"`
}

// PreviewResponse はファイル名プレビュー
type PreviewResponse struct {
	Filename string `json:"filename"`
}
