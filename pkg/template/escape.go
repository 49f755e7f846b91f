package template

import (
	"path"
	"strings"
)

// Filter transforms the text of an escaped expression ($x) before it is
// written. Non-escaping expressions ($:x) bypass it.
type Filter func(string) string

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&#39;",
	`"`, "&quot;",
)

// Websafe escapes s for inclusion in HTML or XML.
func Websafe(s string) string { return htmlReplacer.Replace(s) }

func filterFor(filename string) Filter {
	switch strings.ToLower(path.Ext(filename)) {
	case ".html", ".htm", ".xhtml", ".xml":
		return Websafe
	}
	return nil
}

var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".htm":   "text/html; charset=utf-8",
	".xhtml": "application/xhtml+xml; charset=utf-8",
	".xml":   "text/xml",
	".txt":   "text/plain",
}

// IsTemplateFile reports whether filename has one of the extensions with a
// known content type.
func IsTemplateFile(filename string) bool {
	_, ok := contentTypes[strings.ToLower(path.Ext(filename))]
	return ok
}

func contentTypeFor(filename string) string {
	return contentTypes[strings.ToLower(path.Ext(filename))]
}
