// Package inventorydb はpaintsテーブルへのクエリ実行オブジェクトを提供する。
package inventorydb

import (
	"context"
	"database/sql"
	"time"
)

// Paint はpaintsテーブルの1行を表す。
type Paint struct {
	// ID は塗料の一意識別子。
	ID int64
	// Name は塗料名。
	Name string
	// Brand はブランド名。
	Brand string
	// ColorCode はブランド内のカラーコード。
	ColorCode string
	// ColorType は塗料の種類（アクリル・エナメル等）。
	ColorType string
	// ColorFamily は色系統。
	ColorFamily string
	// ImageURL は商品画像のURL。
	ImageURL string
	// Stock は在庫数。
	Stock int64
	// Price は価格。
	Price float64
	// Description は説明文。
	Description string
	// ColorPreview はプレビュー用の色（16進カラーコード等）。
	ColorPreview string
	// EAN はバーコード（EAN-13）。
	EAN string
	// SyncStatus はモバイルアプリとの同期状態（"synced" または "pending_upload"）。
	SyncStatus string
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// Queries はpaintsテーブルへのクエリ実行オブジェクト。
type Queries struct {
	db *sql.DB
}

// New は新しいクエリ実行オブジェクトを生成する。
func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// paintColumns はSELECT句で使用するカラム一覧。スキーマと同期すること。
const paintColumns = `id, name, brand, color_code, color_type, color_family,
	image_url, stock, price, description, color_preview, ean, sync_status, created_at`

// scanPaint は1行をPaintに読み取る。
func scanPaint(row interface{ Scan(...any) error }) (Paint, error) {
	var p Paint
	err := row.Scan(
		&p.ID, &p.Name, &p.Brand, &p.ColorCode, &p.ColorType, &p.ColorFamily,
		&p.ImageURL, &p.Stock, &p.Price, &p.Description, &p.ColorPreview,
		&p.EAN, &p.SyncStatus, &p.CreatedAt,
	)
	return p, err
}

// ListPaintsParams は塗料一覧取得の絞り込み条件。空文字列の条件は無視する。
type ListPaintsParams struct {
	// Brand はブランド名の部分一致条件。
	Brand string
	// Name は塗料名の部分一致条件。
	Name string
	// EAN はバーコードの完全一致条件。
	EAN string
}

// ListPaints は条件に一致する塗料を作成順に返す。
func (q *Queries) ListPaints(ctx context.Context, params ListPaintsParams) ([]Paint, error) {
	query := `SELECT ` + paintColumns + ` FROM paints WHERE 1=1`
	var args []any
	if params.Brand != "" {
		query += ` AND brand LIKE ?`
		args = append(args, "%"+params.Brand+"%")
	}
	if params.Name != "" {
		query += ` AND name LIKE ?`
		args = append(args, "%"+params.Name+"%")
	}
	if params.EAN != "" {
		query += ` AND ean = ?`
		args = append(args, params.EAN)
	}
	query += ` ORDER BY id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var paints []Paint
	for rows.Next() {
		p, err := scanPaint(rows)
		if err != nil {
			return nil, err
		}
		paints = append(paints, p)
	}
	return paints, rows.Err()
}

// GetPaintByID は指定IDの塗料を返す。存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetPaintByID(ctx context.Context, id int64) (Paint, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+paintColumns+` FROM paints WHERE id = ?`, id)
	return scanPaint(row)
}

// CreatePaintParams は塗料作成のパラメータ。
type CreatePaintParams struct {
	Name         string
	Brand        string
	ColorCode    string
	ColorType    string
	ColorFamily  string
	ImageURL     string
	Stock        int64
	Price        float64
	Description  string
	ColorPreview string
	EAN          string
	SyncStatus   string
}

// CreatePaint は塗料を作成し、採番されたIDを返す。
func (q *Queries) CreatePaint(ctx context.Context, params CreatePaintParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO paints (
			name, brand, color_code, color_type, color_family,
			image_url, stock, price, description, color_preview, ean, sync_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		params.Name, params.Brand, params.ColorCode, params.ColorType,
		params.ColorFamily, params.ImageURL, params.Stock, params.Price,
		params.Description, params.ColorPreview, params.EAN, params.SyncStatus,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// UpdatePaintParams は塗料更新のパラメータ。全フィールドを上書きする。
type UpdatePaintParams struct {
	ID           int64
	Name         string
	Brand        string
	ColorCode    string
	ColorType    string
	ColorFamily  string
	ImageURL     string
	Stock        int64
	Price        float64
	Description  string
	ColorPreview string
	EAN          string
	SyncStatus   string
}

// UpdatePaint は指定IDの塗料を更新する。
func (q *Queries) UpdatePaint(ctx context.Context, params UpdatePaintParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE paints SET
			name = ?, brand = ?, color_code = ?, color_type = ?, color_family = ?,
			image_url = ?, stock = ?, price = ?, description = ?, color_preview = ?,
			ean = ?, sync_status = ?
		WHERE id = ?`,
		params.Name, params.Brand, params.ColorCode, params.ColorType,
		params.ColorFamily, params.ImageURL, params.Stock, params.Price,
		params.Description, params.ColorPreview, params.EAN, params.SyncStatus,
		params.ID,
	)
	return err
}

// DeletePaint は指定IDの塗料を削除し、削除した行数を返す。
func (q *Queries) DeletePaint(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, `DELETE FROM paints WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
