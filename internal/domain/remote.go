package domain

// Topic is one item discovered by a source feed.
type Topic struct {
	ID     string
	Text   string
	URL    string
	Source string
}

// PostStatus mirrors the CMS post status vocabulary.
type PostStatus string

const (
	PostStatusDraft   PostStatus = "draft"
	PostStatusPublish PostStatus = "publish"
)

// PostDraft carries the fields needed to create a remote post.
type PostDraft struct {
	Title  string
	Body   string
	Status PostStatus
}

// PostUpdate is a partial remote post update; nil fields are left untouched.
type PostUpdate struct {
	Title         *string
	Body          *string
	Status        *PostStatus
	Excerpt       *string
	FeaturedMedia *int64
	Tags          []int64
	Categories    []int64
}

// RemotePost is the CMS view of an article.
type RemotePost struct {
	ID   int64
	Link string
}

// RemoteTag is one entry of the CMS tag vocabulary.
type RemoteTag struct {
	ID   int64
	Name string
}

// TagPage is one page of the CMS tag listing.
type TagPage struct {
	Items      []RemoteTag
	TotalPages int
}

// RemoteMedia is an uploaded media-library item.
type RemoteMedia struct {
	ID        int64
	SourceURL string
}
