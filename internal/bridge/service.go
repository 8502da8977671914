package bridge

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Service は通知ブリッジ本体。ストアと時計を保持し、
// 在庫更新処理から呼び出されるプロデューサと、
// Androidクライアント向けのHTTPハンドラ群を提供する。
// プロセス起動時に1つだけ生成し、ルートハンドラへ注入して使う。
type Service struct {
	// store は保留中の通知レコードを保持するストア。
	store *Store
	// now は現在時刻を返す関数。テストで差し替える。
	now func() time.Time
}

// NewService は新しい通知ブリッジを生成する。
func NewService() *Service {
	return &Service{
		store: NewStore(defaultCapacity),
		now:   time.Now,
	}
}

// NotifyStockUpdated は在庫変更の通知レコードを登録する。
// 登録の失敗は呼び出し元の在庫更新処理を妨げてはならないため、
// パニックを含む全ての失敗をログに記録して握りつぶす。
func (s *Service) NotifyStockUpdated(paintID int64, data StockUpdatedData) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("通知の登録に失敗（在庫更新処理は継続）: %v", r)
		}
	}()

	s.store.Append(Record{
		ID:        uuid.New().String(),
		Action:    ActionStockUpdated,
		PaintID:   paintID,
		Timestamp: s.now(),
		Data:      data,
	})
}

// RegisterRoutes はAndroidクライアント向けのエンドポイントを登録する。
func (s *Service) RegisterRoutes(g *gin.RouterGroup) {
	// 未配信通知の取得（Androidが定期ポーリングする）
	g.GET("/get-notifications", s.handleGetNotifications())
	// 処理完了の確認
	g.POST("/confirm-processed", s.handleConfirmProcessed())
	// 運用監視用の集計値
	g.GET("/status", s.handleStatus())
	// 運用・テスト用のリセット
	g.POST("/clear", s.handleClear())
	// テスト通知の生成
	g.POST("/test-notification", s.handleTestNotification())
}

// notificationResponse はポーリング応答内の通知1件のJSON構造。
type notificationResponse struct {
	// ID は通知レコードの一意識別子。
	ID string `json:"id"`
	// Action は通知の種類。
	Action Action `json:"action"`
	// PaintID は対象の塗料ID。
	PaintID int64 `json:"paint_id"`
	// Timestamp はレコードの作成日時（RFC3339形式）。
	Timestamp string `json:"timestamp"`
	// Data は通知の種類ごとのペイロード。
	Data StockUpdatedData `json:"data"`
}

// toNotificationResponse はストアのレコードをJSONレスポンスに変換する。
func toNotificationResponse(rec Record) notificationResponse {
	return notificationResponse{
		ID:        rec.ID,
		Action:    rec.Action,
		PaintID:   rec.PaintID,
		Timestamp: rec.Timestamp.Format(time.RFC3339),
		Data:      rec.Data,
	}
}

// handleGetNotifications は未配信の通知を返すハンドラ。
// 掃除・選択・配信時刻の記録はストア側で原子的に行われるため、
// 猶予時間内に同じ通知が二度返ることはない。
func (s *Service) handleGetNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := s.now()
		records, remaining := s.store.TakeUndelivered(now)

		items := make([]notificationResponse, 0, len(records))
		for _, rec := range records {
			items = append(items, toNotificationResponse(rec))
		}

		c.JSON(http.StatusOK, gin.H{
			"notifications": items,
			"count":         len(items),
			"total_pending": remaining,
			"timestamp":     now.Format(time.RFC3339),
		})
	}
}

// confirmRequest は処理完了確認リクエストのJSON構造。
// notification_ids と processed_count のどちらか一方を指定する。
// processed_count は旧バージョンのAndroidクライアント向けの互換経路。
type confirmRequest struct {
	// NotificationIDs は処理完了した通知レコードのID一覧。
	NotificationIDs []string `json:"notification_ids"`
	// ProcessedCount は処理完了した通知の件数（旧クライアント互換）。
	ProcessedCount *int `json:"processed_count"`
}

// handleConfirmProcessed は処理完了の確認を受け付けるハンドラ。
// 両フィールドが欠落したリクエストはエラーにせずno-opとして扱う。
// 再送で古い・空のペイロードが届いても状態を壊さないため。
func (s *Service) handleConfirmProcessed() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req confirmRequest
		// 空ボディも許容する
		_ = c.ShouldBindJSON(&req)

		var removed, remaining int
		switch {
		case len(req.NotificationIDs) > 0:
			removed, remaining = s.store.ConfirmIDs(req.NotificationIDs)
		case req.ProcessedCount != nil && *req.ProcessedCount > 0:
			removed, remaining = s.store.ConfirmOldest(*req.ProcessedCount)
		default:
			remaining = s.store.Len()
		}

		c.JSON(http.StatusOK, gin.H{
			"removed_count":   removed,
			"remaining_count": remaining,
		})
	}
}

// handleStatus は運用監視用の集計値を返すハンドラ。
func (s *Service) handleStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		total, sent, unsent := s.store.Stats()
		c.JSON(http.StatusOK, gin.H{
			"total_pending": total,
			"sent_count":    sent,
			"unsent_count":  unsent,
		})
	}
}

// clearRequest はリセットリクエストのJSON構造。
type clearRequest struct {
	// Type は削除対象（"all"・"sent"・"old"）。
	Type string `json:"type"`
}

// handleClear は運用・テスト用のリセットを行うハンドラ。
func (s *Service) handleClear() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req clearRequest
		_ = c.ShouldBindJSON(&req)
		if req.Type == "" {
			req.Type = string(ClearAll)
		}

		mode := ClearMode(req.Type)
		switch mode {
		case ClearAll, ClearSent, ClearOld:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "typeは all・sent・old のいずれかを指定してください"})
			return
		}

		removed, remaining := s.store.Clear(mode, s.now())
		c.JSON(http.StatusOK, gin.H{
			"type":      req.Type,
			"removed":   gin.H{"notifications": removed},
			"remaining": remaining,
		})
	}
}

// handleTestNotification はテスト用の在庫変更通知を生成するハンドラ。
// デプロイ後にブリッジの疎通を確認するための運用支援エンドポイント。
func (s *Service) handleTestNotification() gin.HandlerFunc {
	return func(c *gin.Context) {
		data := StockUpdatedData{
			PaintName: "Blanco Hueso",
			PaintCode: "70.918",
			Brand:     "Vallejo",
			OldStock:  5,
			NewStock:  6,
			Source:    "test_endpoint",
		}
		s.NotifyStockUpdated(999, data)

		c.JSON(http.StatusOK, gin.H{
			"message":            "テスト通知を作成しました",
			"paint_name":         data.PaintName,
			"old_stock":          data.OldStock,
			"new_stock":          data.NewStock,
			"notification_count": s.store.Len(),
		})
	}
}
