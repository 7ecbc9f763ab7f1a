// Package server は、ビーム観測コンソールのHTTP制御面を提供します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// カメラ操作リクエストの処理、ライブ画像の配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - カメラの追加・削除・開始・停止の受け付け
//   - 取得パラメータ・ROI・処理設定・表示レンジ・十字線の変更
//   - ライブ画像（PNG / MJPEG）と統計情報の配信
//   - 保存設定の変更と一括スナップショット
//
// 仕様:
//   - gin を使用
//   - ハンドラーはセッションのセッターを呼ぶだけで、画像処理は行わない
//   - MJPEG は表示面が更新されたときだけフレームを送る
package server
