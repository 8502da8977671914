package account

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	accountdb "github.com/nao1215/painthub/internal/account/db"
	"github.com/nao1215/painthub/pkg/middleware"
)

// Server はアカウントサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はusersテーブルへのクエリ実行オブジェクト。
	queries *accountdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret string
}

// NewServer は新しいアカウントサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("ACCOUNT_DB_PATH")
	if dbPath == "" {
		dbPath = "/data/account.db"
	}
	sqlDB, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}
	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:    router,
		port:      port,
		queries:   accountdb.New(sqlDB),
		db:        sqlDB,
		jwtSecret: jwtSecret,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			// ユーザー登録
			auth.POST("/register", s.handleRegister())
			// ログイン（JWT発行）
			auth.POST("/login", s.handleLogin())
		}

		users := api.Group("/users")
		users.Use(middleware.JWTAuth(s.jwtSecret))
		{
			// 自分のプロフィール取得
			users.GET("/me", s.handleGetMe())
			// 自分のプロフィール更新
			users.PUT("/me", s.handleUpdateMe())

			admin := users.Group("")
			admin.Use(middleware.RequireAdmin())
			{
				// ユーザー一覧（管理者のみ）
				admin.GET("", s.handleListUsers())
				// ユーザー削除（管理者のみ）
				admin.DELETE("/:id", s.handleDeleteUser())
			}
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "account"})
	})
}

// registerRequest はユーザー登録リクエストのJSON構造。
type registerRequest struct {
	// Username はログイン用のユーザー名。
	Username string `json:"username" binding:"required,min=3,max=64"`
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password はパスワード（平文。保存時にハッシュ化する）。
	Password string `json:"password" binding:"required,min=6"`
	// ExperienceLevel はモデル塗装の経験レベル。
	ExperienceLevel string `json:"experience_level"`
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Username はログイン用のユーザー名。
	Username string `json:"username" binding:"required"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
}

// updateMeRequest はプロフィール更新リクエストのJSON構造。
type updateMeRequest struct {
	Email           *string `json:"email"`
	ExperienceLevel *string `json:"experience_level"`
	Password        *string `json:"password"`
}

// userResponse はユーザーのJSONレスポンス構造。パスワードハッシュは含めない。
type userResponse struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	ExperienceLevel string `json:"experience_level"`
	CreatedAt       string `json:"created_at"`
}

// toUserResponse はDB行をJSONレスポンスに変換する。
func toUserResponse(u accountdb.User) userResponse {
	return userResponse{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		Role:            u.Role,
		ExperienceLevel: u.ExperienceLevel,
		CreatedAt:       u.CreatedAt.Format(time.RFC3339),
	}
}

// handleRegister はユーザー登録を処理するハンドラ。
// 登録されたユーザーは一般ユーザーロールになる。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		// ユーザー名・メールアドレスの重複を事前に確認する
		if _, err := s.queries.GetUserByUsername(c.Request.Context(), req.Username); err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "このユーザー名は既に使用されています"})
			return
		}
		if _, err := s.queries.GetUserByEmail(c.Request.Context(), req.Email); err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "このメールアドレスは既に登録されています"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードの処理に失敗しました"})
			log.Printf("パスワードハッシュ化エラー: %v", err)
			return
		}

		level := req.ExperienceLevel
		if level == "" {
			level = "beginner"
		}

		user := accountdb.CreateUserParams{
			ID:              uuid.New().String(),
			Username:        req.Username,
			Email:           req.Email,
			PasswordHash:    string(hash),
			Role:            middleware.RoleUser,
			ExperienceLevel: level,
		}
		if err := s.queries.CreateUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの作成に失敗しました"})
			log.Printf("ユーザー作成エラー: %v", err)
			return
		}

		created, err := s.queries.GetUserByID(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "作成したユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, created.ID, created.Email, created.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
			log.Printf("JWT生成エラー: %v", err)
			return
		}

		log.Printf("新規ユーザーを登録: %s", created.Username)
		c.JSON(http.StatusCreated, gin.H{
			"token": token,
			"user":  toUserResponse(created),
		})
	}
}

// handleLogin はログインを処理するハンドラ。
// 認証に成功した場合、ロールを含むJWTトークンを発行する。
// ユーザーの不存在とパスワード不一致は同じエラーメッセージで返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		user, err := s.queries.GetUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザー名またはパスワードが違います"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ログイン処理に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザー名またはパスワードが違います"})
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, user.ID, user.Email, user.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
			log.Printf("JWT生成エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user":  toUserResponse(user),
		})
	}
}

// handleGetMe は認証済みユーザー自身のプロフィールを返すハンドラ。
func (s *Server) handleGetMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.queries.GetUserByID(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toUserResponse(user))
	}
}

// handleUpdateMe は認証済みユーザー自身のプロフィール更新を処理するハンドラ。
// ユーザー名・ロールは変更できない。
func (s *Server) handleUpdateMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateMeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}
		if req.Password != nil && len(*req.Password) < 6 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "パスワードは6文字以上にしてください"})
			return
		}

		userID := middleware.GetUserID(c)
		current, err := s.queries.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		params := accountdb.UpdateUserParams{
			ID:              current.ID,
			Email:           current.Email,
			ExperienceLevel: current.ExperienceLevel,
		}
		if req.Email != nil {
			params.Email = *req.Email
		}
		if req.ExperienceLevel != nil {
			params.ExperienceLevel = *req.ExperienceLevel
		}

		if err := s.queries.UpdateUser(c.Request.Context(), params); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィールの更新に失敗しました"})
			log.Printf("ユーザー更新エラー: %v", err)
			return
		}

		if req.Password != nil {
			hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードの処理に失敗しました"})
				log.Printf("パスワードハッシュ化エラー: %v", err)
				return
			}
			if err := s.queries.UpdatePassword(c.Request.Context(), userID, string(hash)); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードの更新に失敗しました"})
				log.Printf("パスワード更新エラー: %v", err)
				return
			}
		}

		updated, err := s.queries.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新したユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toUserResponse(updated))
	}
}

// handleListUsers は全ユーザーの一覧を返すハンドラ。管理者専用。
func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := s.queries.ListUsers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー一覧の取得に失敗しました"})
			log.Printf("ユーザー一覧取得エラー: %v", err)
			return
		}

		responses := make([]userResponse, 0, len(users))
		for _, u := range users {
			responses = append(responses, toUserResponse(u))
		}
		c.JSON(http.StatusOK, responses)
	}
}

// handleDeleteUser はユーザー削除を処理するハンドラ。管理者専用。
// 自分自身のアカウントは削除できない。
func (s *Server) handleDeleteUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		targetID := c.Param("id")
		if targetID == middleware.GetUserID(c) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "自分自身のアカウントは削除できません"})
			return
		}

		affected, err := s.queries.DeleteUser(c.Request.Context(), targetID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの削除に失敗しました"})
			log.Printf("ユーザー削除エラー: %v", err)
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}

		log.Printf("ユーザーを削除: %s", targetID)
		c.JSON(http.StatusOK, gin.H{"message": "ユーザーを削除しました"})
	}
}
