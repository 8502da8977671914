// アカウントサービスのエントリポイント。
// ユーザー登録・ログイン（JWT発行）・プロフィール管理と
// 管理者向けのユーザー管理を提供する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/painthub/internal/account"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	server, err := account.NewServer(port)
	if err != nil {
		log.Fatalf("アカウントサーバーの初期化に失敗: %v", err)
	}

	log.Printf("アカウントサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("アカウントサービスの起動に失敗: %v", err)
	}
}
