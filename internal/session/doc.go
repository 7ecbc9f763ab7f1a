// Package session カメラ1台分の取得・処理・保存パイプラインを担う
//
// # 責務
// - カメラの取得ゴルーチンから届くフレームを単一スロットへ受け渡す（フレーム受け渡しブリッジ）
// - 再描画ティックでのフィルタ・しきい値・統計計算と表示面の更新
// - 一定間隔でのフレーム保存とショット番号の管理
// - ゲイン・露光・ROI などの取得パラメータ設定
// - 表示レンジ・十字線などの表示状態
//
// # 仕様
// - 状態は Stopped と Running の2つ。Start / Stop は冪等で、実際に遷移したときだけ通知する
// - ブリッジではフィルタ・統計・ディスク I/O を行わない
// - ソフトウェアトリガー時は、フレーム到着ごとに別ゴルーチンで次のフレームを要求する
// - 描画中のエラーやパニックはログに残し、セッションは継続する
// - 保存に失敗しても最終保存時刻は進める
package session
