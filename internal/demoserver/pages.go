package demoserver

// StatusSlow marks a page that answers 200 only after Config.SlowDelay.
const StatusSlow = -1

// PageDefinition is one page of the demo staging site.
type PageDefinition struct {
	Path        string
	Description string
	// Status is the initial response code, or StatusSlow.
	Status int
	// Location is the redirect target for 3xx statuses.
	Location string
	// Sitemap names the child sitemap listing the page; empty means unlisted.
	Sitemap string
}

// Child sitemaps referenced from /sitemap.xml.
const (
	SitemapPages = "pages"
	SitemapBlog  = "blog"
)

// GetAllPages returns all demo page definitions.
func GetAllPages() []PageDefinition {
	return []PageDefinition{
		{Path: "/", Description: "Home page", Status: 200, Sitemap: SitemapPages},
		{Path: "/about", Description: "Migrated page", Status: 200, Sitemap: SitemapPages},
		{Path: "/services", Description: "Migrated page", Status: 200, Sitemap: SitemapPages},
		{Path: "/services/hosting", Description: "Not built on staging yet", Status: 404, Sitemap: SitemapPages},
		{Path: "/pricing", Description: "Redirects to the new plans page", Status: 301, Location: "/plans", Sitemap: SitemapPages},
		{Path: "/plans", Description: "Redirect target", Status: 200},
		{Path: "/contact", Description: "Server error on staging", Status: 500, Sitemap: SitemapPages},
		{Path: "/blog/launch", Description: "Migrated post", Status: 200, Sitemap: SitemapBlog},
		{Path: "/blog/roadmap", Description: "Post dropped from the launch", Status: 404, Sitemap: SitemapBlog},
		{Path: "/blog/archive", Description: "Slow page, exceeds short probe timeouts", Status: StatusSlow, Sitemap: SitemapBlog},
	}
}
