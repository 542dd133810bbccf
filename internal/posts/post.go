// ABOUTME: Post record and its mapping from store documents
// ABOUTME: authorName is resolved from the users collection on read and never stored

package posts

import (
	"strings"
	"time"

	"github.com/2389/blogsys/internal/docstore"
)

const (
	fieldTitle     = "title"
	fieldCover     = "cover"
	fieldContent   = "content"
	fieldTags      = "tags"
	fieldAuthorID  = "authorId"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"
)

// Post is a blog entry.
type Post struct {
	ID         string
	Title      string
	Cover      string
	Content    string // markdown
	Tags       []string
	AuthorID   string
	AuthorName string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ToPost maps a post document. It returns nil for an absent snapshot.
func ToPost(snap *docstore.Snapshot) *Post {
	if !snap.Exists() {
		return nil
	}
	return &Post{
		ID:        snap.ID,
		Title:     snap.Data.String(fieldTitle),
		Cover:     snap.Data.String(fieldCover),
		Content:   snap.Data.String(fieldContent),
		Tags:      snap.Data.Strings(fieldTags),
		AuthorID:  snap.Data.String(fieldAuthorID),
		CreatedAt: snap.Data.Time(fieldCreatedAt),
		UpdatedAt: snap.Data.Time(fieldUpdatedAt),
	}
}

// TagString joins tags for display in a form field.
func (p *Post) TagString() string {
	return strings.Join(p.Tags, ", ")
}

// ParseTags splits a comma-separated list, trimming blanks and duplicates.
func ParseTags(s string) []string {
	tags := []string{}
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}
