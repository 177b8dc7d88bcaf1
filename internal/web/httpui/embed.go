package httpui

import (
	"embed"
	"html/template"

	"immun/internal/dashboard"
)

//go:embed templates/*.html
var templateFS embed.FS

type uploadData struct {
	Upload *dashboard.UploadView
	CSRF   string
}

var pages = template.Must(template.New("pages").Funcs(template.FuncMap{
	"uploadData": func(u *dashboard.UploadView, csrf string) uploadData {
		return uploadData{Upload: u, CSRF: csrf}
	},
}).ParseFS(templateFS, "templates/*.html"))
