// ABOUTME: Template rendering functions for the dashboard UI
// ABOUTME: Loads templates from the embedded filesystem and renders them

package webadmin

import (
	"html/template"
	"net/http"
	"time"

	"github.com/2389/blogsys/internal/account"
	"github.com/2389/blogsys/internal/posts"
)

// pageData carries everything a dashboard page can show
type pageData struct {
	Title     string
	Caller    *account.Caller
	CSRFToken string
	Error     string
	Flash     string

	Users     []*account.User
	User      *account.User
	HasAvatar bool

	Posts   []*posts.Post
	Post    *posts.Post
	Preview template.HTML
}

var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
	"isAdmin": func(c *account.Caller) bool {
		return c.IsAdmin()
	},
}

// newPage starts page data for a request, issuing a CSRF token if needed
func (a *Admin) newPage(w http.ResponseWriter, r *http.Request, title string) (*http.Request, pageData) {
	r, token := a.ensureCSRFToken(w, r)
	return r, pageData{
		Title:     title,
		Caller:    getCaller(r),
		CSRFToken: token,
	}
}

// render executes the base layout with the named page template
func (a *Admin) render(w http.ResponseWriter, status int, page string, data pageData) {
	tmpl, err := template.New("base.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/base.html", "templates/"+page)
	if err != nil {
		a.logger.Error("failed to parse template", "template", page, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render template", "template", page, "error", err)
	}
}

func (a *Admin) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	_, data := a.newPage(w, r, http.StatusText(status))
	data.Error = msg
	a.render(w, status, "error.html", data)
}

func (a *Admin) renderLoginPage(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	_, data := a.newPage(w, r, "Sign in")
	data.Error = errMsg
	data.Flash = flashMessage(r.URL.Query())
	a.render(w, status, "login.html", data)
}

func (a *Admin) renderInitPage(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	_, data := a.newPage(w, r, "Create admin")
	data.Error = errMsg
	a.render(w, status, "init.html", data)
}

func (a *Admin) renderUsersPage(w http.ResponseWriter, r *http.Request, users []*account.User) {
	_, data := a.newPage(w, r, "Users")
	data.Users = users
	data.Flash = flashMessage(r.URL.Query())
	a.render(w, http.StatusOK, "users.html", data)
}

func (a *Admin) renderUserForm(w http.ResponseWriter, r *http.Request, user *account.User) {
	title := "New user"
	if user.ID != "" {
		title = "Edit user"
	}
	_, data := a.newPage(w, r, title)
	data.User = user
	a.render(w, http.StatusOK, "user_form.html", data)
}

// renderSettingsPage shows the caller's own profile, reloaded from the store
func (a *Admin) renderSettingsPage(w http.ResponseWriter, r *http.Request, flash string) {
	caller := getCaller(r)
	user, err := a.accounts.GetUserByID(r.Context(), caller.ID)
	if err != nil || user == nil {
		a.logger.Error("failed to load settings", "user_id", caller.ID, "error", err)
		a.renderError(w, r, http.StatusInternalServerError, "An error occurred")
		return
	}

	_, data := a.newPage(w, r, "Settings")
	data.User = user
	data.Flash = flash
	if img, err := a.accounts.GetAvatar(r.Context(), user.AvatarID); err == nil && img != nil && img.Data != "" {
		data.HasAvatar = true
	}
	a.render(w, http.StatusOK, "settings.html", data)
}

func (a *Admin) renderPostsPage(w http.ResponseWriter, r *http.Request, list []*posts.Post) {
	_, data := a.newPage(w, r, "Posts")
	data.Posts = list
	data.Flash = flashMessage(r.URL.Query())
	a.render(w, http.StatusOK, "posts.html", data)
}

func (a *Admin) renderPostForm(w http.ResponseWriter, r *http.Request, post *posts.Post) {
	title := "New post"
	if post.ID != "" {
		title = "Edit post"
	}
	_, data := a.newPage(w, r, title)
	data.Post = post
	if post.Content != "" {
		preview, err := a.posts.RenderContent(post)
		if err != nil {
			a.logger.Warn("failed to render post preview", "post_id", post.ID, "error", err)
		}
		data.Preview = preview
	}
	a.render(w, http.StatusOK, "post_form.html", data)
}
