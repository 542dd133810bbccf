// Package posts implements blog post management for the dashboard.
//
// Signed-in users list posts and create their own; authors edit and delete
// their posts and admins may edit or delete any post. Content is markdown and
// is rendered to HTML with goldmark. Mutations return an account.Outcome so the
// web layer handles posts and accounts the same way.
package posts
