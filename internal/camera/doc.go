// Package camera GigEカメラへのアクセスを抽象化する
//
// # 責務
// - カメラSDKへの最小限のケイパビリティインターフェースの定義
// - デバイスの列挙と接続（使用中デバイスの検出）
// - 取得領域（ROI）のクランプとハードウェアへの安全な書き込み
// - 実機が無い環境向けのエミュレートカメラ
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - カメラのパラメータ（ゲイン・露光・ROI・送信遅延）を読み書きしたい
// - 取得スレッドからフレームを受け取りたい
// - 実機なしで複数台構成を試したい（エミュレータ）
//
// # 仕様
// - Camera: 1台のカメラへの操作。範囲外の値は ErrOutOfRange、非対応機能は ErrNotSupported
// - Discovery: デバイスの列挙と Open。他プロセスが確保中なら ErrDeviceBusy
// - ClampRegion / CommitRegion: ROI は常に幅・高さ4以上でセンサー内に収まり、
//   書き込み途中の状態もセンサー範囲を超えない
// - FrameHandler はカメラ内部の取得ゴルーチンから呼ばれるため、
//   ハンドラーはブロックしてはならない
// - DiscoveryFactory: バックエンド名（gige / emulated）から Discovery を作成
package camera
