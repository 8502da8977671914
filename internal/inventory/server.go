package inventory

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/painthub/internal/bridge"
	inventorydb "github.com/nao1215/painthub/internal/inventory/db"
	"github.com/nao1215/painthub/pkg/httpclient"
	"github.com/nao1215/painthub/pkg/middleware"
	"github.com/nao1215/painthub/pkg/migration"
)

// migrationsFS はスキーマ定義のマイグレーションファイル。
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// Server は塗料在庫サービスのHTTPサーバー。
// 通知ブリッジを同一プロセスに抱え、在庫変更時に通知レコードを登録する。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はpaintsテーブルへのクエリ実行オブジェクト。
	queries *inventorydb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// notifier はAndroid向け通知ブリッジ。
	notifier *bridge.Service
	// imageClient は塗料画像検索プロバイダへの通信クライアント。
	imageClient *httpclient.Client
	// jwtSecret はJWT検証用の秘密鍵。
	jwtSecret string
	// apiKey はAndroidクライアント認証用のAPIキー。
	apiKey string
}

// NewServer は新しい在庫サーバーを生成する。
// SQLiteデータベースの初期化とマイグレーションの適用を行う。
func NewServer(port string) (*Server, error) {
	dbPath := getEnvOr("INVENTORY_DB_PATH", "/data/inventory.db")
	sqlDB, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := migration.Run(sqlDB, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	imageSearchURL := getEnvOr("IMAGE_SEARCH_URL", "http://localhost:8090")
	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:      router,
		port:        port,
		queries:     inventorydb.New(sqlDB),
		db:          sqlDB,
		notifier:    bridge.NewService(),
		imageClient: httpclient.NewWithAPIKey(imageSearchURL, os.Getenv("IMAGE_SEARCH_API_KEY")),
		jwtSecret:   getEnvOr("JWT_SECRET", "dev-secret-key"),
		apiKey:      getEnvOr("ANDROID_API_KEY", "dev-android-api-key"),
	}
	s.setupRoutes()

	return s, nil
}

// getEnvOr は環境変数の値を返す。未設定の場合はフォールバック値を返す。
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		// 閲覧系は認証不要（Web管理画面・Androidの両方から参照される）
		paints := api.Group("/paints")
		{
			// 塗料一覧取得（brand・name・eanで絞り込み可能）
			paints.GET("", s.handleListPaints())
			// 塗料詳細取得
			paints.GET("/:id", s.handleGetPaint())
		}

		// 変更系はAndroidのAPIキーまたは管理者JWTを要求する
		mutations := api.Group("/paints")
		mutations.Use(middleware.APIKeyOrAdmin(s.jwtSecret, s.apiKey))
		{
			// 塗料作成
			mutations.POST("", s.handleCreatePaint())
			// 塗料更新（在庫変更時は通知ブリッジへ登録）
			mutations.PUT("/:id", s.handleUpdatePaint())
			// 塗料削除
			mutations.DELETE("/:id", s.handleDeletePaint())
		}

		// 塗料画像検索（外部プロバイダへのプロキシ）
		api.GET("/paint-images/search", s.handleSearchPaintImages())

		// Android向け通知ブリッジ
		s.notifier.RegisterRoutes(api.Group("/android-notify"))
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "inventory"})
	})
}

// createPaintRequest は塗料作成リクエストのJSON構造。
type createPaintRequest struct {
	// Name は塗料名。
	Name string `json:"name" binding:"required"`
	// Brand はブランド名。
	Brand string `json:"brand" binding:"required"`
	// ColorCode はブランド内のカラーコード。
	ColorCode string `json:"color_code"`
	// ColorType は塗料の種類。
	ColorType string `json:"color_type"`
	// ColorFamily は色系統。
	ColorFamily string `json:"color_family"`
	// ImageURL は商品画像のURL。
	ImageURL string `json:"image_url"`
	// Stock は在庫数。
	Stock int64 `json:"stock"`
	// Price は価格。
	Price float64 `json:"price"`
	// Description は説明文。
	Description string `json:"description"`
	// ColorPreview はプレビュー用の色。
	ColorPreview string `json:"color_preview"`
	// EAN はバーコード。
	EAN string `json:"ean"`
}

// updatePaintRequest は塗料更新リクエストのJSON構造。
// 部分更新を許容するため、全フィールドをポインタで受ける。
// Androidクライアントは {"stock": N} のみを送ってくる。
type updatePaintRequest struct {
	Name         *string  `json:"name"`
	Brand        *string  `json:"brand"`
	ColorCode    *string  `json:"color_code"`
	ColorType    *string  `json:"color_type"`
	ColorFamily  *string  `json:"color_family"`
	ImageURL     *string  `json:"image_url"`
	Stock        *int64   `json:"stock"`
	Price        *float64 `json:"price"`
	Description  *string  `json:"description"`
	ColorPreview *string  `json:"color_preview"`
	EAN          *string  `json:"ean"`
	SyncStatus   *string  `json:"sync_status"`
}

// paintResponse は塗料のJSONレスポンス構造。
type paintResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Brand        string  `json:"brand"`
	ColorCode    string  `json:"color_code"`
	ColorType    string  `json:"color_type"`
	ColorFamily  string  `json:"color_family"`
	ImageURL     string  `json:"image_url"`
	Stock        int64   `json:"stock"`
	Price        float64 `json:"price"`
	Description  string  `json:"description"`
	ColorPreview string  `json:"color_preview"`
	EAN          string  `json:"ean"`
	SyncStatus   string  `json:"sync_status"`
	CreatedAt    string  `json:"created_at"`
}

// toPaintResponse はDB行をJSONレスポンスに変換する。
func toPaintResponse(p inventorydb.Paint) paintResponse {
	return paintResponse{
		ID:           p.ID,
		Name:         p.Name,
		Brand:        p.Brand,
		ColorCode:    p.ColorCode,
		ColorType:    p.ColorType,
		ColorFamily:  p.ColorFamily,
		ImageURL:     p.ImageURL,
		Stock:        p.Stock,
		Price:        p.Price,
		Description:  p.Description,
		ColorPreview: p.ColorPreview,
		EAN:          p.EAN,
		SyncStatus:   p.SyncStatus,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
}

// handleListPaints は塗料一覧を返すハンドラ。
// brand・nameは部分一致、eanは完全一致（バーコード照合）で絞り込む。
func (s *Server) handleListPaints() gin.HandlerFunc {
	return func(c *gin.Context) {
		paints, err := s.queries.ListPaints(c.Request.Context(), inventorydb.ListPaintsParams{
			Brand: c.Query("brand"),
			Name:  c.Query("name"),
			EAN:   c.Query("ean"),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "塗料一覧の取得に失敗しました"})
			log.Printf("塗料一覧取得エラー: %v", err)
			return
		}

		responses := make([]paintResponse, 0, len(paints))
		for _, p := range paints {
			responses = append(responses, toPaintResponse(p))
		}
		c.JSON(http.StatusOK, responses)
	}
}

// handleGetPaint は塗料詳細を返すハンドラ。
func (s *Server) handleGetPaint() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "塗料IDが不正です"})
			return
		}

		paint, err := s.queries.GetPaintByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "塗料が見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "塗料の取得に失敗しました"})
			log.Printf("塗料取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toPaintResponse(paint))
	}
}

// handleCreatePaint は塗料作成を処理するハンドラ。
func (s *Server) handleCreatePaint() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPaintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		id, err := s.queries.CreatePaint(c.Request.Context(), inventorydb.CreatePaintParams{
			Name:         req.Name,
			Brand:        req.Brand,
			ColorCode:    req.ColorCode,
			ColorType:    req.ColorType,
			ColorFamily:  req.ColorFamily,
			ImageURL:     req.ImageURL,
			Stock:        req.Stock,
			Price:        req.Price,
			Description:  req.Description,
			ColorPreview: req.ColorPreview,
			EAN:          req.EAN,
			SyncStatus:   "synced",
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "塗料の作成に失敗しました"})
			log.Printf("塗料作成エラー: %v", err)
			return
		}

		paint, err := s.queries.GetPaintByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "作成した塗料の取得に失敗しました"})
			log.Printf("塗料取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toPaintResponse(paint))
	}
}

// handleUpdatePaint は塗料更新を処理するハンドラ。
// 在庫数が変化した場合のみ通知ブリッジへレコードを登録する。
// 通知の登録は在庫更新の成否に影響しない（ベストエフォート）。
func (s *Server) handleUpdatePaint() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "塗料IDが不正です"})
			return
		}

		var req updatePaintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		current, err := s.queries.GetPaintByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "塗料が見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "塗料の取得に失敗しました"})
			log.Printf("塗料取得エラー: %v", err)
			return
		}

		params := applyUpdate(current, req)
		if err := s.queries.UpdatePaint(c.Request.Context(), params); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "塗料の更新に失敗しました"})
			log.Printf("塗料更新エラー: %v", err)
			return
		}

		if req.Stock != nil && *req.Stock != current.Stock {
			s.notifier.NotifyStockUpdated(id, bridge.StockUpdatedData{
				PaintName: params.Name,
				PaintCode: params.ColorCode,
				Brand:     params.Brand,
				OldStock:  current.Stock,
				NewStock:  *req.Stock,
				Source:    middleware.GetSource(c),
			})
			log.Printf("在庫変更を通知: %s (%d → %d)", params.Name, current.Stock, *req.Stock)
		}

		updated, err := s.queries.GetPaintByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新した塗料の取得に失敗しました"})
			log.Printf("塗料取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toPaintResponse(updated))
	}
}

// applyUpdate は現在の行に部分更新リクエストを適用した更新パラメータを返す。
func applyUpdate(current inventorydb.Paint, req updatePaintRequest) inventorydb.UpdatePaintParams {
	params := inventorydb.UpdatePaintParams{
		ID:           current.ID,
		Name:         current.Name,
		Brand:        current.Brand,
		ColorCode:    current.ColorCode,
		ColorType:    current.ColorType,
		ColorFamily:  current.ColorFamily,
		ImageURL:     current.ImageURL,
		Stock:        current.Stock,
		Price:        current.Price,
		Description:  current.Description,
		ColorPreview: current.ColorPreview,
		EAN:          current.EAN,
		SyncStatus:   current.SyncStatus,
	}

	if req.Name != nil {
		params.Name = *req.Name
	}
	if req.Brand != nil {
		params.Brand = *req.Brand
	}
	if req.ColorCode != nil {
		params.ColorCode = *req.ColorCode
	}
	if req.ColorType != nil {
		params.ColorType = *req.ColorType
	}
	if req.ColorFamily != nil {
		params.ColorFamily = *req.ColorFamily
	}
	if req.ImageURL != nil {
		params.ImageURL = *req.ImageURL
	}
	if req.Stock != nil {
		params.Stock = *req.Stock
	}
	if req.Price != nil {
		params.Price = *req.Price
	}
	if req.Description != nil {
		params.Description = *req.Description
	}
	if req.ColorPreview != nil {
		params.ColorPreview = *req.ColorPreview
	}
	if req.EAN != nil {
		params.EAN = *req.EAN
	}
	if req.SyncStatus != nil {
		params.SyncStatus = *req.SyncStatus
	}
	return params
}

// handleDeletePaint は塗料削除を処理するハンドラ。
func (s *Server) handleDeletePaint() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "塗料IDが不正です"})
			return
		}

		affected, err := s.queries.DeletePaint(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "塗料の削除に失敗しました"})
			log.Printf("塗料削除エラー: %v", err)
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "塗料が見つかりません"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "塗料を削除しました"})
	}
}

// imageSearchResponse は画像検索プロバイダのレスポンス構造。
type imageSearchResponse struct {
	// Images は検索結果の画像一覧。
	Images []imageSearchItem `json:"images"`
}

// imageSearchItem は画像検索結果の1件。
type imageSearchItem struct {
	// URL は画像のURL。
	URL string `json:"url"`
	// Title は画像のタイトル。
	Title string `json:"title"`
	// ThumbnailURL はサムネイル画像のURL。
	ThumbnailURL string `json:"thumbnail_url"`
}

// handleSearchPaintImages は外部プロバイダへの画像検索プロキシハンドラ。
// Web管理画面が塗料の商品画像を探すために使用する。
func (s *Server) handleSearchPaintImages() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("query")
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "queryパラメータが必要です"})
			return
		}

		var result imageSearchResponse
		path := "/api/images/search?query=" + url.QueryEscape(query)
		if err := s.imageClient.GetJSON(c.Request.Context(), path, &result); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "画像検索プロバイダへの接続に失敗しました"})
			log.Printf("画像検索エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
