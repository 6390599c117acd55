// Package domain holds the Confluence REST API entities returned by the
// resource clients.
package domain

// Links contains hypermedia links attached to an entity.
type Links struct {
	Base    string `json:"base,omitempty"`
	Context string `json:"context,omitempty"`
	Self    string `json:"self,omitempty"`
	WebUI   string `json:"webui,omitempty"`
	TinyUI  string `json:"tinyui,omitempty"`
	Edit    string `json:"edit,omitempty"`
}

// User represents a Confluence user.
type User struct {
	Type           string          `json:"type"`
	Username       string          `json:"username,omitempty"`
	UserKey        string          `json:"userKey,omitempty"`
	AccountID      string          `json:"accountId,omitempty"`
	DisplayName    string          `json:"displayName"`
	Email          string          `json:"email,omitempty"`
	ProfilePicture *ProfilePicture `json:"profilePicture,omitempty"`
	Links          *Links          `json:"_links,omitempty"`
}

// ProfilePicture contains user avatar info.
type ProfilePicture struct {
	Path      string `json:"path"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	IsDefault bool   `json:"isDefault"`
}

// Space represents a Confluence space.
type Space struct {
	ID          int64             `json:"id"`
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Status      string            `json:"status,omitempty"`
	Description *SpaceDescription `json:"description,omitempty"`
	Homepage    *Content          `json:"homepage,omitempty"`
	Links       *Links            `json:"_links,omitempty"`
}

// SpaceDescription contains space description variants.
type SpaceDescription struct {
	Plain *Body `json:"plain,omitempty"`
	View  *Body `json:"view,omitempty"`
}

// Body holds a text value together with its representation.
type Body struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

// ContentBody holds the expandable body representations of a content entity.
type ContentBody struct {
	Storage *Body `json:"storage,omitempty"`
	View    *Body `json:"view,omitempty"`
}

// Content represents a page, blog post, comment or attachment.
type Content struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Status     string         `json:"status,omitempty"`
	Title      string         `json:"title"`
	Space      *Space         `json:"space,omitempty"`
	History    *History       `json:"history,omitempty"`
	Version    *Version       `json:"version,omitempty"`
	Ancestors  []Content      `json:"ancestors,omitempty"`
	Body       *ContentBody   `json:"body,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Links      *Links         `json:"_links,omitempty"`
	Expandable map[string]any `json:"_expandable,omitempty"`
}

// History contains creation metadata.
type History struct {
	Latest      bool   `json:"latest"`
	CreatedBy   *User  `json:"createdBy,omitempty"`
	CreatedDate string `json:"createdDate,omitempty"`
}

// Version contains version information.
type Version struct {
	Number    int    `json:"number"`
	When      string `json:"when,omitempty"`
	Message   string `json:"message,omitempty"`
	MinorEdit bool   `json:"minorEdit"`
	By        *User  `json:"by,omitempty"`
}

// Container is the entity a search hit lives in (usually a space).
type Container struct {
	Title      string `json:"title"`
	DisplayURL string `json:"displayUrl,omitempty"`
}

// SearchResultItem is a single CQL search hit. Exactly one of Content, Space
// or User is set, depending on EntityType.
type SearchResultItem struct {
	Content               *Content   `json:"content,omitempty"`
	Space                 *Space     `json:"space,omitempty"`
	User                  *User      `json:"user,omitempty"`
	Title                 string     `json:"title"`
	Excerpt               string     `json:"excerpt,omitempty"`
	URL                   string     `json:"url,omitempty"`
	ResultGlobalContainer *Container `json:"resultGlobalContainer,omitempty"`
	EntityType            string     `json:"entityType,omitempty"`
	IconCSSClass          string     `json:"iconCssClass,omitempty"`
	LastModified          string     `json:"lastModified,omitempty"`
	FriendlyLastModified  string     `json:"friendlyLastModified,omitempty"`
}
