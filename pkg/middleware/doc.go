// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWT認証トークンの検証、AndroidクライアントのAPIキー認証、
// パニックリカバリ、CORS設定など、inventory・accountの両サービスで
// 共通して使用するミドルウェアを含む。
package middleware
