package account

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	accountdb "github.com/nao1215/painthub/internal/account/db"
	"github.com/nao1215/painthub/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testJWTSecret はテスト用のJWT秘密鍵。
const testJWTSecret = "test-jwt-secret"

// setupTestServer はテスト用のアカウントサーバーをインメモリSQLiteで構築する。
func setupTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	// インメモリDBは接続ごとに独立するため、接続数を1に固定する
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	s := &Server{
		router:    gin.New(),
		port:      "0",
		queries:   accountdb.New(sqlDB),
		db:        sqlDB,
		jwtSecret: testJWTSecret,
	}
	s.setupRoutes()

	return s, s.router
}

// createTestUser はテスト用にユーザーをDBに直接挿入し、IDを返すヘルパー関数。
func createTestUser(t *testing.T, s *Server, username, password, role string) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("パスワードハッシュ化に失敗: %v", err)
	}

	id := uuid.New().String()
	err = s.queries.CreateUser(t.Context(), accountdb.CreateUserParams{
		ID:              id,
		Username:        username,
		Email:           username + "@example.com",
		PasswordHash:    string(hash),
		Role:            role,
		ExperienceLevel: "beginner",
	})
	if err != nil {
		t.Fatalf("テスト用ユーザーの作成に失敗: %v", err)
	}
	return id
}

// tokenFor は指定ユーザーのJWTトークンを生成するヘルパー関数。
func tokenFor(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := middleware.GenerateJWT(testJWTSecret, userID, "test@example.com", role)
	if err != nil {
		t.Fatalf("JWT生成に失敗: %v", err)
	}
	return token
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
// tokenが空でない場合、Authorizationヘッダーを設定する。
func doRequest(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをJSONとしてパースするヘルパー関数。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v (body: %s)", err, w.Body.String())
	}
}

// TestHandleRegister はユーザー登録を検証する。
func TestHandleRegister(t *testing.T) {
	t.Parallel()

	t.Run("ユーザー登録に成功すること", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{
			"username": "painter1",
			"email":    "painter1@example.com",
			"password": "secret123",
		}
		w := doRequest(router, http.MethodPost, "/api/v1/auth/register", "", body)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusCreated, w.Body.String())
		}

		var resp struct {
			Token string       `json:"token"`
			User  userResponse `json:"user"`
		}
		parseJSON(t, w, &resp)
		if resp.Token == "" {
			t.Error("トークンが空")
		}
		if resp.User.Username != "painter1" {
			t.Errorf("Username = %q, want %q", resp.User.Username, "painter1")
		}
		if resp.User.Role != middleware.RoleUser {
			t.Errorf("Role = %q, want %q", resp.User.Role, middleware.RoleUser)
		}
		if resp.User.ExperienceLevel != "beginner" {
			t.Errorf("ExperienceLevel = %q, want %q", resp.User.ExperienceLevel, "beginner")
		}
		if resp.User.ID == "" {
			t.Error("IDが空")
		}

		// 発行されたトークンで認証付きエンドポイントにアクセスできること
		w = doRequest(router, http.MethodGet, "/api/v1/users/me", resp.Token, nil)
		if w.Code != http.StatusOK {
			t.Errorf("発行トークンでのアクセス status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("レスポンスにパスワードハッシュが含まれないこと", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{
			"username": "painter2",
			"email":    "painter2@example.com",
			"password": "secret123",
		}
		w := doRequest(router, http.MethodPost, "/api/v1/auth/register", "", body)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
		}

		var raw struct {
			User map[string]any `json:"user"`
		}
		parseJSON(t, w, &raw)
		for _, key := range []string{"password", "password_hash"} {
			if _, ok := raw.User[key]; ok {
				t.Errorf("レスポンスに %q が含まれている", key)
			}
		}
	})

	t.Run("ユーザー名の重複で409が返ること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		createTestUser(t, s, "taken", "password1", middleware.RoleUser)

		body := map[string]any{
			"username": "taken",
			"email":    "other@example.com",
			"password": "secret123",
		}
		w := doRequest(router, http.MethodPost, "/api/v1/auth/register", "", body)
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("メールアドレスの重複で409が返ること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		createTestUser(t, s, "existing", "password1", middleware.RoleUser)

		body := map[string]any{
			"username": "newcomer",
			"email":    "existing@example.com",
			"password": "secret123",
		}
		w := doRequest(router, http.MethodPost, "/api/v1/auth/register", "", body)
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("短すぎるパスワードで400が返ること", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{
			"username": "painter3",
			"email":    "painter3@example.com",
			"password": "abc",
		}
		w := doRequest(router, http.MethodPost, "/api/v1/auth/register", "", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("不正なメールアドレスで400が返ること", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{
			"username": "painter4",
			"email":    "not-an-email",
			"password": "secret123",
		}
		w := doRequest(router, http.MethodPost, "/api/v1/auth/register", "", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleLogin はログインとJWT発行を検証する。
func TestHandleLogin(t *testing.T) {
	t.Parallel()

	t.Run("正しい認証情報でトークンが発行されること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		createTestUser(t, s, "painter", "secret123", middleware.RoleUser)

		body := map[string]any{"username": "painter", "password": "secret123"}
		w := doRequest(router, http.MethodPost, "/api/v1/auth/login", "", body)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
		}

		var resp struct {
			Token string       `json:"token"`
			User  userResponse `json:"user"`
		}
		parseJSON(t, w, &resp)
		if resp.Token == "" {
			t.Error("トークンが空")
		}
		if resp.User.Username != "painter" {
			t.Errorf("Username = %q, want %q", resp.User.Username, "painter")
		}

		// 発行されたトークンで認証付きエンドポイントにアクセスできること
		w = doRequest(router, http.MethodGet, "/api/v1/users/me", resp.Token, nil)
		if w.Code != http.StatusOK {
			t.Errorf("発行トークンでのアクセス status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("誤ったパスワードで401が返ること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		createTestUser(t, s, "painter", "secret123", middleware.RoleUser)

		body := map[string]any{"username": "painter", "password": "wrong-password"}
		w := doRequest(router, http.MethodPost, "/api/v1/auth/login", "", body)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("存在しないユーザーで401が返ること", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{"username": "ghost", "password": "secret123"}
		w := doRequest(router, http.MethodPost, "/api/v1/auth/login", "", body)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("存在しないユーザーと誤ったパスワードで同じエラーメッセージが返ること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		createTestUser(t, s, "painter", "secret123", middleware.RoleUser)

		w1 := doRequest(router, http.MethodPost, "/api/v1/auth/login", "",
			map[string]any{"username": "ghost", "password": "secret123"})
		w2 := doRequest(router, http.MethodPost, "/api/v1/auth/login", "",
			map[string]any{"username": "painter", "password": "wrong"})

		var e1, e2 map[string]string
		parseJSON(t, w1, &e1)
		parseJSON(t, w2, &e2)
		if e1["error"] != e2["error"] {
			t.Errorf("エラーメッセージが異なる: %q vs %q", e1["error"], e2["error"])
		}
	})
}

// TestHandleGetMe はプロフィール取得を検証する。
func TestHandleGetMe(t *testing.T) {
	t.Parallel()

	t.Run("認証済みユーザーのプロフィールが返ること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		id := createTestUser(t, s, "painter", "secret123", middleware.RoleUser)

		w := doRequest(router, http.MethodGet, "/api/v1/users/me", tokenFor(t, id, middleware.RoleUser), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
		}

		var user userResponse
		parseJSON(t, w, &user)
		if user.ID != id {
			t.Errorf("ID = %q, want %q", user.ID, id)
		}
		if user.Username != "painter" {
			t.Errorf("Username = %q, want %q", user.Username, "painter")
		}
	})

	t.Run("トークンなしで401が返ること", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/api/v1/users/me", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestHandleUpdateMe はプロフィール更新を検証する。
func TestHandleUpdateMe(t *testing.T) {
	t.Parallel()

	t.Run("経験レベルを更新できること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		id := createTestUser(t, s, "painter", "secret123", middleware.RoleUser)

		body := map[string]any{"experience_level": "expert"}
		w := doRequest(router, http.MethodPut, "/api/v1/users/me", tokenFor(t, id, middleware.RoleUser), body)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
		}

		var user userResponse
		parseJSON(t, w, &user)
		if user.ExperienceLevel != "expert" {
			t.Errorf("ExperienceLevel = %q, want %q", user.ExperienceLevel, "expert")
		}
		// 指定していないメールアドレスは維持される
		if user.Email != "painter@example.com" {
			t.Errorf("Email = %q, want %q", user.Email, "painter@example.com")
		}
	})

	t.Run("パスワードを変更すると新しいパスワードでログインできること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		id := createTestUser(t, s, "painter", "secret123", middleware.RoleUser)

		body := map[string]any{"password": "newsecret456"}
		w := doRequest(router, http.MethodPut, "/api/v1/users/me", tokenFor(t, id, middleware.RoleUser), body)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
		}

		// 旧パスワードではログインできない
		w = doRequest(router, http.MethodPost, "/api/v1/auth/login", "",
			map[string]any{"username": "painter", "password": "secret123"})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("旧パスワードでのstatus = %d, want %d", w.Code, http.StatusUnauthorized)
		}

		// 新パスワードでログインできる
		w = doRequest(router, http.MethodPost, "/api/v1/auth/login", "",
			map[string]any{"username": "painter", "password": "newsecret456"})
		if w.Code != http.StatusOK {
			t.Errorf("新パスワードでのstatus = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("短すぎるパスワードへの変更は400になること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		id := createTestUser(t, s, "painter", "secret123", middleware.RoleUser)

		body := map[string]any{"password": "abc"}
		w := doRequest(router, http.MethodPut, "/api/v1/users/me", tokenFor(t, id, middleware.RoleUser), body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("メールアドレスを更新できること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		id := createTestUser(t, s, "painter", "secret123", middleware.RoleUser)

		body := map[string]any{"email": "new@example.com"}
		w := doRequest(router, http.MethodPut, "/api/v1/users/me", tokenFor(t, id, middleware.RoleUser), body)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}

		var user userResponse
		parseJSON(t, w, &user)
		if user.Email != "new@example.com" {
			t.Errorf("Email = %q, want %q", user.Email, "new@example.com")
		}
	})
}

// TestHandleListUsers はユーザー一覧（管理者専用）を検証する。
func TestHandleListUsers(t *testing.T) {
	t.Parallel()

	t.Run("管理者は全ユーザーを取得できること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		adminID := createTestUser(t, s, "admin", "secret123", middleware.RoleAdmin)
		createTestUser(t, s, "painter", "secret123", middleware.RoleUser)

		w := doRequest(router, http.MethodGet, "/api/v1/users", tokenFor(t, adminID, middleware.RoleAdmin), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
		}

		var users []userResponse
		parseJSON(t, w, &users)
		if len(users) != 2 {
			t.Errorf("len(users) = %d, want 2", len(users))
		}
	})

	t.Run("一般ユーザーは403になること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		id := createTestUser(t, s, "painter", "secret123", middleware.RoleUser)

		w := doRequest(router, http.MethodGet, "/api/v1/users", tokenFor(t, id, middleware.RoleUser), nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

// TestHandleDeleteUser はユーザー削除（管理者専用）を検証する。
func TestHandleDeleteUser(t *testing.T) {
	t.Parallel()

	t.Run("管理者は他のユーザーを削除できること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		adminID := createTestUser(t, s, "admin", "secret123", middleware.RoleAdmin)
		targetID := createTestUser(t, s, "painter", "secret123", middleware.RoleUser)

		w := doRequest(router, http.MethodDelete, "/api/v1/users/"+targetID, tokenFor(t, adminID, middleware.RoleAdmin), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
		}

		if _, err := s.queries.GetUserByID(t.Context(), targetID); err == nil {
			t.Error("削除したユーザーがまだ存在する")
		}
	})

	t.Run("自分自身は削除できないこと", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		adminID := createTestUser(t, s, "admin", "secret123", middleware.RoleAdmin)

		w := doRequest(router, http.MethodDelete, "/api/v1/users/"+adminID, tokenFor(t, adminID, middleware.RoleAdmin), nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}

		if _, err := s.queries.GetUserByID(t.Context(), adminID); err != nil {
			t.Error("管理者アカウントが削除されてしまった")
		}
	})

	t.Run("存在しないユーザーで404が返ること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		adminID := createTestUser(t, s, "admin", "secret123", middleware.RoleAdmin)

		w := doRequest(router, http.MethodDelete, "/api/v1/users/"+uuid.New().String(), tokenFor(t, adminID, middleware.RoleAdmin), nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("一般ユーザーは403になること", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)
		id := createTestUser(t, s, "painter", "secret123", middleware.RoleUser)
		targetID := createTestUser(t, s, "other", "secret123", middleware.RoleUser)

		w := doRequest(router, http.MethodDelete, "/api/v1/users/"+targetID, tokenFor(t, id, middleware.RoleUser), nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

// TestAccountHealthCheck はヘルスチェックエンドポイントを検証する。
func TestAccountHealthCheck(t *testing.T) {
	t.Parallel()

	_, router := setupTestServer(t)
	w := doRequest(router, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]string
	parseJSON(t, w, &body)
	if body["service"] != "account" {
		t.Errorf("service = %q, want %q", body["service"], "account")
	}
}
