// Package inventory は塗料在庫サービスを提供する。
//
// 塗料のCRUD操作、バーコード（EAN）による照合、外部プロバイダへの
// 画像検索プロキシを担当する。在庫数が変化した場合はAndroid向け
// 通知ブリッジ（internal/bridge）へ通知レコードを登録する。
// 通知ブリッジはプロセス内メモリで動作するため、在庫の変更処理と
// 同一プロセスで稼働する必要がある。
//
// 閲覧系のエンドポイントは認証不要、変更系はAndroidクライアントの
// APIキーまたは管理者JWTを要求する。
package inventory
