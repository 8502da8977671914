package bridge

import "time"

// Action は通知の種類を表す。
type Action string

const (
	// ActionStockUpdated は塗料の在庫数が変更されたことを表す。
	ActionStockUpdated Action = "stock_updated"
)

// StockUpdatedData はstock_updated通知のペイロード。
// 在庫変更の内容をAndroidクライアントへ伝えるための型付きデータ。
type StockUpdatedData struct {
	// PaintName は塗料名。
	PaintName string `json:"paint_name"`
	// PaintCode は塗料のカラーコード。
	PaintCode string `json:"paint_code"`
	// Brand は塗料のブランド名。
	Brand string `json:"brand"`
	// OldStock は変更前の在庫数。
	OldStock int64 `json:"old_stock"`
	// NewStock は変更後の在庫数。
	NewStock int64 `json:"new_stock"`
	// Source は変更の発生元（"web"、"android"、"test_endpoint"）。
	Source string `json:"source"`
}

// Record はストアに保持される通知レコード。
// ID・Action・PaintID・Timestamp・Dataは作成時に設定され、以後変更されない。
// 状態遷移するのはDeliveredAtとSentのみ。
type Record struct {
	// ID はレコードの一意識別子（UUID）。
	ID string
	// Action は通知の種類。
	Action Action
	// PaintID は対象の塗料ID。
	PaintID int64
	// Timestamp はレコードの作成日時。
	Timestamp time.Time
	// DeliveredAt はポーリング応答に含めた日時。ゼロ値は未配信を表す。
	// 確認タイムアウト後の再配信時にはゼロ値に戻される。
	DeliveredAt time.Time
	// Sent はクライアントが処理完了を確認済みかどうか。
	// 配信しただけでは真にならず、確認APIの呼び出しでのみ真になる。
	Sent bool
	// Data は通知の種類ごとのペイロード。
	Data StockUpdatedData
}
