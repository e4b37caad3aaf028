package server

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:dist
var embedFS embed.FS

// fallbackIndex は index.html が埋め込まれていない場合に返す
var fallbackIndex = []byte("<!doctype html><title>cameralink</title><p>cameralink</p>")

// GetAssetsFS は操作画面のアセットを返す
func GetAssetsFS() (http.FileSystem, error) {
	// dist/assets のサブディレクトリを取得
	assetsFS, err := fs.Sub(embedFS, "dist/assets")
	if err != nil {
		return nil, err
	}
	return http.FS(assetsFS), nil
}

// getIndexHTML は index.html の内容を返す
func getIndexHTML() []byte {
	data, err := embedFS.ReadFile("dist/index.html")
	if err != nil {
		return fallbackIndex
	}
	return data
}
