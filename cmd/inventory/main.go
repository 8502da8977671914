// 塗料在庫サービスのエントリポイント。
// 塗料のCRUD・バーコード照合・画像検索プロキシに加え、
// Android向け通知ブリッジを同一プロセス内で提供する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/painthub/internal/inventory"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server, err := inventory.NewServer(port)
	if err != nil {
		log.Fatalf("在庫サーバーの初期化に失敗: %v", err)
	}

	log.Printf("在庫サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("在庫サービスの起動に失敗: %v", err)
	}
}
