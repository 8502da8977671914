// Package account はユーザーアカウントサービスを提供する。
//
// ユーザー登録・ログイン（JWT発行）・プロフィール管理と、
// 管理者向けのユーザー一覧・削除を担当する。パスワードはbcryptで
// ハッシュ化して保存する。発行するJWTにはロール（admin / user）を
// 含め、他サービスの管理者向けエンドポイントの認可に使用する。
package account
