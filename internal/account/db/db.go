// Package accountdb はusersテーブルへのクエリ実行オブジェクトを提供する。
package accountdb

import (
	"context"
	"database/sql"
	"time"
)

// User はusersテーブルの1行を表す。
type User struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string
	// Username はログイン用のユーザー名。
	Username string
	// Email はメールアドレス。
	Email string
	// PasswordHash はbcryptでハッシュ化したパスワード。
	PasswordHash string
	// Role はロール（admin / user）。
	Role string
	// ExperienceLevel はモデル塗装の経験レベル。
	ExperienceLevel string
	// CreatedAt はアカウントの作成日時。
	CreatedAt time.Time
}

// Queries はusersテーブルへのクエリ実行オブジェクト。
type Queries struct {
	db *sql.DB
}

// New は新しいクエリ実行オブジェクトを生成する。
func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// userColumns はSELECT句で使用するカラム一覧。スキーマと同期すること。
const userColumns = `id, username, email, password_hash, role, experience_level, created_at`

// scanUser は1行をUserに読み取る。
func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.Role, &u.ExperienceLevel, &u.CreatedAt,
	)
	return u, err
}

// CreateUserParams はユーザー作成のパラメータ。
type CreateUserParams struct {
	ID              string
	Username        string
	Email           string
	PasswordHash    string
	Role            string
	ExperienceLevel string
}

// CreateUser はユーザーを作成する。
func (q *Queries) CreateUser(ctx context.Context, params CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, experience_level)
		VALUES (?, ?, ?, ?, ?, ?)`,
		params.ID, params.Username, params.Email, params.PasswordHash,
		params.Role, params.ExperienceLevel,
	)
	return err
}

// GetUserByID は指定IDのユーザーを返す。存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByUsername は指定ユーザー名のユーザーを返す。
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// GetUserByEmail は指定メールアドレスのユーザーを返す。
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// ListUsers は全ユーザーを作成順に返す。
func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserParams はユーザー更新のパラメータ。
type UpdateUserParams struct {
	ID              string
	Email           string
	ExperienceLevel string
}

// UpdateUser は指定IDのユーザーのプロフィールを更新する。
func (q *Queries) UpdateUser(ctx context.Context, params UpdateUserParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE users SET email = ?, experience_level = ? WHERE id = ?`,
		params.Email, params.ExperienceLevel, params.ID,
	)
	return err
}

// UpdatePassword は指定IDのユーザーのパスワードハッシュを更新する。
func (q *Queries) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ? WHERE id = ?`,
		passwordHash, id,
	)
	return err
}

// DeleteUser は指定IDのユーザーを削除し、削除した行数を返す。
func (q *Queries) DeleteUser(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
