// Package telemetry ビーム統計を MQTT ブローカーへ配信する
//
// # 責務
// - ブローカーへの接続と自動再接続
// - カメラごとの統計情報の JSON 配信
//
// # 仕様
// - トピック: {prefix}/{シリアル番号}/stats
// - 再描画処理をブロックしないよう、送信はキュー経由で別ゴルーチンが行う
// - キューが満杯の場合は破棄して件数だけ数える
// - カメラごとに最小送信間隔で間引く
package telemetry
