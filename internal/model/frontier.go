package model

// ItemKind distinguishes the two kinds of frontier units.
type ItemKind string

const (
	KindCategory ItemKind = "category"
	KindPage     ItemKind = "page"
)

// FrontierItem is one not-yet-processed unit of the crawl: a category
// awaiting expansion or a page awaiting fetch+classify. Depth is the
// category-tree depth at which the item was first seen.
type FrontierItem struct {
	Kind  ItemKind `json:"kind"`
	Name  string   `json:"name"`
	Depth int      `json:"depth"`
}

// CategoryMember is one member of a wiki category, either a regular page
// or a subcategory.
type CategoryMember struct {
	Title         string `json:"title"`
	IsSubcategory bool   `json:"is_subcategory"`
}

// PageContent is the fetched content of a single wiki page.
type PageContent struct {
	Title   string `json:"title"`
	Text    string `json:"text"`
	URL     string `json:"url"`
	Summary string `json:"summary,omitempty"`
}
