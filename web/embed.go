// Package web embeds the expense UI templates and static assets.
package web

import "embed"

// TemplatesFS holds the page templates rendered by internal/ui.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
