// ABOUTME: Post action handlers: list, get, save, delete and markdown rendering
// ABOUTME: Authors manage their own posts and admins manage everyone's

package posts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/blogsys/internal/account"
	"github.com/2389/blogsys/internal/docstore"
)

// Navigation targets produced by post actions.
const (
	TargetPostsSaved   = "/posts?saved=true"
	TargetPostsDeleted = "/posts?deleted=true"
)

// Service implements the post actions.
type Service struct {
	posts    docstore.Collection
	users    docstore.Collection
	markdown goldmark.Markdown
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a post service over store.
func NewService(store docstore.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		posts:    store.Collection(docstore.CollectionPosts),
		users:    store.Collection(docstore.CollectionUsers),
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "posts"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// postInput is the validated shape of a post form.
type postInput struct {
	Title   string `validate:"required,max=300"`
	Cover   string `validate:"omitempty,url,max=2048"`
	Content string `validate:"max=200000"`
}

// GetPosts lists every post, newest first, with author names filled in.
func (s *Service) GetPosts(ctx context.Context, caller *account.Caller) ([]*Post, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: not signed in", account.ErrUnauthorized)
	}

	snaps, err := s.posts.Query(ctx, docstore.Query{})
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}

	result := make([]*Post, 0, len(snaps))
	names := map[string]string{}
	for _, snap := range snaps {
		p := ToPost(snap)
		name, ok := names[p.AuthorID]
		if !ok {
			name, err = s.authorName(ctx, p.AuthorID)
			if err != nil {
				return nil, err
			}
			names[p.AuthorID] = name
		}
		p.AuthorName = name
		result = append(result, p)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetPost returns the post with id, or nil.
func (s *Service) GetPost(ctx context.Context, id string) (*Post, error) {
	if id == "" {
		return nil, nil
	}
	snap, err := s.posts.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting post: %w", err)
	}
	p := ToPost(snap)
	if p == nil {
		return nil, nil
	}
	if p.AuthorName, err = s.authorName(ctx, p.AuthorID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) authorName(ctx context.Context, authorID string) (string, error) {
	if authorID == "" {
		return "", nil
	}
	snap, err := s.users.Get(ctx, authorID, "name")
	if err != nil {
		return "", fmt.Errorf("resolving author: %w", err)
	}
	if !snap.Exists() {
		return "", nil
	}
	return snap.Data.String("name"), nil
}

// SavePost creates a post authored by the caller, or updates an existing one.
func (s *Service) SavePost(ctx context.Context, caller *account.Caller, form *account.Form) account.Outcome {
	if caller == nil {
		return account.Failure(fmt.Errorf("%w: not signed in", account.ErrUnauthorized))
	}

	in := postInput{
		Title:   strings.TrimSpace(form.Get(fieldTitle)),
		Cover:   strings.TrimSpace(form.Get(fieldCover)),
		Content: form.Get(fieldContent),
	}
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return account.Failure(fmt.Errorf("%w: %s is invalid", account.ErrInvalidInput, strings.ToLower(verrs[0].Field())))
		}
		return account.Failure(fmt.Errorf("%w: %v", account.ErrInvalidInput, err))
	}

	now := s.now()
	fields := docstore.Document{
		fieldTitle:     in.Title,
		fieldCover:     in.Cover,
		fieldContent:   in.Content,
		fieldTags:      ParseTags(form.Get(fieldTags)),
		fieldUpdatedAt: now,
	}

	id := strings.TrimSpace(form.Get("id"))
	if id == "" {
		fields[fieldAuthorID] = caller.ID
		fields[fieldCreatedAt] = now
		newID, err := s.posts.Insert(ctx, fields)
		if err != nil {
			return account.Failure(fmt.Errorf("inserting post: %w", err))
		}
		s.logger.Info("post created", "post_id", newID, "author_id", caller.ID)
		return account.Redirect(TargetPostsSaved)
	}

	if err := s.requireAuthor(ctx, caller, id); err != nil {
		return account.Failure(err)
	}
	if err := s.posts.Update(ctx, id, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return account.Failure(fmt.Errorf("%w: post %s does not exist", account.ErrInvalidInput, id))
		}
		return account.Failure(fmt.Errorf("updating post: %w", err))
	}

	s.logger.Info("post updated", "post_id", id, "by", caller.ID)
	return account.Redirect(TargetPostsSaved)
}

// DeletePost removes a post. Only its author or an admin may delete it.
func (s *Service) DeletePost(ctx context.Context, caller *account.Caller, id string) account.Outcome {
	if caller == nil {
		return account.Failure(fmt.Errorf("%w: not signed in", account.ErrUnauthorized))
	}
	if id == "" {
		return account.Failure(fmt.Errorf("%w: post id required", account.ErrInvalidInput))
	}
	if err := s.requireAuthor(ctx, caller, id); err != nil {
		return account.Failure(err)
	}

	if err := s.posts.Delete(ctx, id); err != nil {
		return account.Failure(fmt.Errorf("deleting post: %w", err))
	}

	s.logger.Info("post deleted", "post_id", id, "by", caller.ID)
	return account.Redirect(TargetPostsDeleted)
}

// requireAuthor checks the caller may modify post id.
func (s *Service) requireAuthor(ctx context.Context, caller *account.Caller, id string) error {
	snap, err := s.posts.Get(ctx, id, fieldAuthorID)
	if err != nil {
		return fmt.Errorf("getting post: %w", err)
	}
	if !snap.Exists() {
		return fmt.Errorf("%w: post %s does not exist", account.ErrInvalidInput, id)
	}
	return account.RequireSelfOrRole(caller, snap.Data.String(fieldAuthorID), account.RoleAdmin)
}

// RenderContent converts a post's markdown to HTML. Raw HTML in the source is not passed through.
func (s *Service) RenderContent(p *Post) (template.HTML, error) {
	if p == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(p.Content), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
