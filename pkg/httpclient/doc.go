// Package httpclient は外部サービスとのHTTP通信を行うクライアントを提供する。
//
// inventoryサービスが塗料画像検索プロバイダのAPIを呼び出す際に使用する。
// タイムアウトとAPIキー認証の扱いを統一する。
package httpclient
