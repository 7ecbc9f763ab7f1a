// Package archive フレームのディスクへの保存を担う
//
// # 責務
// - 保存設定（モード・間隔・ディレクトリ・ファイル名テンプレート・ショット番号）の保持と検証
// - 構造化されたファイル名の生成とプレビュー
// - フレームの TIFF / FITS / 低解像度 PNG への書き出し
// - 保存済みファイルの一覧取得
//
// # 仕様
// - ファイル名: {prefix_}YYYYMMDD_HHMMSS_{カメラ名}{_suffix}{_ショット番号}.tiff
// - 低解像度モードでは表示レンジで8bitに落とした PNG を保存する
// - フル解像度の TIFF / FITS は生の画素値をそのまま保存する（読み戻すと完全に一致）
// - 設定は Policy がアトミックに差し替え、読み出し側はロック不要
// - インデックスは持たない。ディレクトリ内のフラットなファイルのみ
package archive
