package account

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS users (
    -- ユーザーの一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- ログイン用のユーザー名
    username TEXT NOT NULL UNIQUE,
    -- メールアドレス
    email TEXT NOT NULL UNIQUE,
    -- bcryptでハッシュ化したパスワード
    password_hash TEXT NOT NULL,
    -- ロール（admin / user）
    role TEXT NOT NULL DEFAULT 'user',
    -- モデル塗装の経験レベル（beginner / intermediate / expert）
    experience_level TEXT NOT NULL DEFAULT 'beginner',
    -- アカウントの作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

-- ユーザー名でのログイン照合を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
