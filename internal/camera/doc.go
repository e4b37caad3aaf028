// Package camera キャプチャデバイスとキャプチャセッションを扱う
//
// # 責務
// - 映像・音声デバイスの検出（V4L2 / ALSA）
// - デバイス入力と写真出力を束ねるキャプチャセッション
// - 構成変更のトランザクション（BeginConfiguration/CommitConfiguration）
// - ffmpeg経由でのMJPEGストリーミングと静止画の取り出し
// - 表示側の向きから映像の向きへの変換
//
// # 仕様
//   - セッションは映像入力・音声入力をそれぞれ最大1つ、写真出力を1つ持つ
//   - 入力・出力の追加と削除はトランザクション中のみ可能
//   - 同一セッションで同時に開けるトランザクションは1つ
//   - ストリームが異常終了するとセッションは StatusError で停止する
//
// # 前提要件
//   - v4l-utils: デバイスのフォーマット判定に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: ストリーミングに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
