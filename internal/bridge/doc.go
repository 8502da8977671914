// Package bridge はWeb管理画面とAndroidクライアント間の通知ブリッジを提供する。
//
// 塗料レコードの変更をポーリングベースでAndroidクライアントへ伝える
// プロセス内キュー。重複配信の抑止、配信・確認の追跡、
// 古いレコードの破棄を行う。永続化は行わないため、
// プロセス再起動で保留中の通知は失われる。
package bridge
