// Package site defines a tenant's storefront configuration and pages.
package site

import "time"

// Config is the per-tenant storefront configuration. One per tenant.
type Config struct {
	TenantID    string         `json:"tenant_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Theme       string         `json:"theme"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Page is a storefront page. Slug is unique per tenant.
type Page struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Position  int       `json:"position"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`
}

// PageSeed is the content of one page in a template.
type PageSeed struct {
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Template is a reusable set of pages and a theme.
type Template struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Theme string     `json:"theme"`
	Pages []PageSeed `json:"pages"`
}

// DefaultTheme is used when no template supplies one.
const DefaultTheme = "classic"

// DefaultPages returns the Home/About/Contact pages created for every new
// storefront.
func DefaultPages(storeName string) []PageSeed {
	return []PageSeed{
		{Slug: "home", Title: "Home", Content: "Welcome to " + storeName},
		{Slug: "about", Title: "About", Content: "About " + storeName},
		{Slug: "contact", Title: "Contact", Content: "Contact " + storeName},
	}
}

// SeedPages returns the template's pages, falling back to the defaults for
// any of home/about/contact the template omits.
func SeedPages(tpl *Template, storeName string) []PageSeed {
	defaults := DefaultPages(storeName)
	if tpl == nil || len(tpl.Pages) == 0 {
		return defaults
	}
	out := make([]PageSeed, 0, len(tpl.Pages)+len(defaults))
	seen := make(map[string]bool, len(tpl.Pages))
	for _, p := range tpl.Pages {
		if p.Slug == "" || seen[p.Slug] {
			continue
		}
		seen[p.Slug] = true
		out = append(out, p)
	}
	for _, d := range defaults {
		if !seen[d.Slug] {
			out = append(out, d)
		}
	}
	return out
}
