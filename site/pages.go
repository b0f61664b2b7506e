package site

import "strings"

// Page describes one navigable page of the portfolio site.
type Page struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Icon  string `json:"icon"`
}

var pages = []Page{
	{Name: "portfolio", Title: "포트폴리오", Icon: "💼"},
	{Name: "resume", Title: "이력서", Icon: "📄"},
	{Name: "skills", Title: "기술스택", Icon: "🛠️"},
	{Name: "blog", Title: "블로그", Icon: "📝"},
}

// Pages returns the navigable pages in display order.
func Pages() []Page {
	out := make([]Page, len(pages))
	copy(out, pages)
	return out
}

// Lookup finds a page by name.
func Lookup(name string) (Page, bool) {
	name = strings.TrimSpace(strings.ToLower(name))
	for _, p := range pages {
		if p.Name == name {
			return p, true
		}
	}
	return Page{}, false
}

// Known reports whether name is a registered page.
func Known(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// Title returns the display title for a page, or the raw name when the page
// is not registered. Prompts must render something for any input.
func Title(name string) string {
	if p, ok := Lookup(name); ok {
		return p.Title
	}
	return name
}

// Icon returns the page icon, with a generic document fallback.
func Icon(name string) string {
	if p, ok := Lookup(name); ok {
		return p.Icon
	}
	return "📄"
}
