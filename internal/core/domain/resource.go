package domain

import (
	"fmt"
	"net/url"
	"path"
)

// ResourceID names a protected tour folder.
type ResourceID string

const (
	ResourceNational ResourceID = "National"
	ResourceHags     ResourceID = "Hags"
	ResourceMuckross ResourceID = "Muckross"
	ResourceRoss     ResourceID = "Ross"
	ResourceTown     ResourceID = "Town"
)

// Resource describes where a tour lives on the static content host.
type Resource struct {
	ID          ResourceID `json:"id" mapstructure:"id"`
	DisplayName string     `json:"display_name" mapstructure:"display_name"`
	Folder      string     `json:"folder" mapstructure:"folder"`
	IndexFile   string     `json:"index_file" mapstructure:"index_file"` // Casing differs between deployed folders
}

const (
	// ToursPrefix is the path under which tour folders are served.
	ToursPrefix = "/tours"
	// AccessPath is the redemption endpoint embedded in access links.
	AccessPath = "/access"
)

// DefaultResources is the deployed tour set. Hags, Muckross and National ship
// Index.html; Ross and Town ship index.html.
var DefaultResources = []Resource{
	{ID: ResourceNational, DisplayName: "Discover Killarney National Park", Folder: "National", IndexFile: "Index.html"},
	{ID: ResourceHags, DisplayName: "Hag's Glen: Path to the Devil's Ladder", Folder: "Hags", IndexFile: "Index.html"},
	{ID: ResourceMuckross, DisplayName: "Muckross Park Revealed", Folder: "Muckross", IndexFile: "Index.html"},
	{ID: ResourceRoss, DisplayName: "Ross Island Uncovered", Folder: "Ross", IndexFile: "index.html"},
	{ID: ResourceTown, DisplayName: "Killarney Town", Folder: "Town", IndexFile: "index.html"},
}

// Catalog is the static set of known resources keyed by id.
type Catalog struct {
	byID map[ResourceID]Resource
}

// NewCatalog validates resources and indexes them by id.
func NewCatalog(resources []Resource) (*Catalog, error) {
	c := &Catalog{byID: make(map[ResourceID]Resource, len(resources))}
	for _, r := range resources {
		if r.ID == "" {
			return nil, fmt.Errorf("resource with empty id")
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate resource %q", r.ID)
		}
		if r.Folder == "" || r.IndexFile == "" {
			return nil, fmt.Errorf("resource %q: folder and index_file are required", r.ID)
		}
		if r.DisplayName == "" {
			r.DisplayName = string(r.ID)
		}
		c.byID[r.ID] = r
	}
	return c, nil
}

// Lookup returns the resource for id.
func (c *Catalog) Lookup(id ResourceID) (Resource, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// Has reports whether id is a known resource.
func (c *Catalog) Has(id ResourceID) bool {
	_, ok := c.byID[id]
	return ok
}

// Len returns the number of resources.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// RedirectPath builds the in-site location for a redeemed token.
func (r Resource) RedirectPath(token string) string {
	return path.Join(ToursPrefix, r.Folder, r.IndexFile) + "?token=" + url.QueryEscape(token)
}
