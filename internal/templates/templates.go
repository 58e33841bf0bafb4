package templates

import (
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*
var resources embed.FS

var funcs = template.FuncMap{
	"seconds": func(s float64) time.Duration {
		return time.Duration(s * float64(time.Second)).Round(time.Second)
	},
	"unix": func(s float64) string {
		return time.Unix(int64(s), 0).UTC().Format(time.RFC3339)
	},
	"since": func(t time.Time) time.Duration {
		return time.Since(t).Round(time.Second)
	},
}

var TemplateExecutor = template.Must(template.New("").Funcs(funcs).ParseFS(resources, "templates/*"))
