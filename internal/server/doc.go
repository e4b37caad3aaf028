// Package server は、キャプチャセッションを操作するHTTPサーバーを提供します。
//
// 表示クライアント（ブラウザ）はこのサーバーを通じてプレビューを受け取り、
// ナビゲーション操作（更新・撮影・録画）を送り、アラートに応答します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - ナビゲーション操作のライフサイクル管理への受け渡し
//   - 表示中のアラートの取得とアクションの選択
//   - MJPEGによるプレビューの配信
//   - 操作画面（HTML/CSS/JS）の配信
//   - Prometheusメトリクスの公開
//
// 仕様:
//   - ルーティングはgin-gonic/ginを使用
//   - 操作は受け付けのみ行い、結果はステータスとアラートで確認する
//   - グレースフルシャットダウンに対応
package server
