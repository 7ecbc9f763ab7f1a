// Package fleet 開いているカメラセッション全体の調整を担う
//
// # 責務
// - カメラの追加・削除とセッションのライフサイクル管理
// - GigE 帯域を分け合うためのパケット送信スケジュール（ペーシング）の再計算
// - 保存設定の一括適用とショット番号のリセット
// - 全セッションを駆動する共有再描画スケジューラー
// - 全カメラ一括スナップショット
//
// # 仕様
// - ペーシングは追加順に、直前までのカメラの (パケットサイズ + ヘッダー) の累積を送信遅延とする
// - パケット間遅延は全カメラ共通で、累積の合計を上限値で頭打ちにする
// - 送信遅延に非対応のカメラは個別に無視する
// - 再描画スケジューラーは1つのゴルーチンで全セッションを順に処理する
package fleet
