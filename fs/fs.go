package appfs

import "embed"

// FS holds the SQL migrations and the runtime assets (email templates, password lists).
//
//go:embed all:assets migrations
var FS embed.FS
