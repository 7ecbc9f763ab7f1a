// Package frame はモノクロ画像フレームと、その受け渡し・解析処理を提供する
//
// # 責務
// - 生の画素値を保持するフレーム型
// - カメラの取得ゴルーチンと再描画処理の間の単一スロット受け渡し
// - メディアンフィルタ・しきい値処理
// - 飽和画素数・総強度・重心・2次モーメント幅の計算
//
// # 仕様
// - Slot は未消費フレームを最大1枚だけ保持し、新しいフレームで上書きする
// - フィルタやしきい値は常にコピーに対して行い、生データは変更しない
package frame
