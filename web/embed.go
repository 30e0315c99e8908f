package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFiles embed.FS

// Handler 提供内嵌的前端页面（index.html / script.js / style.css）
func Handler() http.Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// static 目录在编译期内嵌，不会缺失
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
