// Package web embeds the templates and static assets served by internal/http.
package web

import "embed"

// TemplatesFS holds full pages plus the list partials re-rendered by htmx.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the toast/notification script.
//
//go:embed static/*.css static/*.js
var StaticFS embed.FS
