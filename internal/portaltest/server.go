// Package portaltest runs an in-process imitation of the Wellbin portal:
// a login form, a dashboard, the study explorer, study pages and an
// object-storage host for the PDFs.
package portaltest

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	csrfToken     = "portaltest-csrf"
	sessionCookie = "wellbin_session"
	storagePrefix = "/wellbin-uploads.s3/"
)

// Study is one study the fake portal lists.
type Study struct {
	ID         string
	Type       string
	ReportDate string // text of the report-date field; empty omits the field
	CardText   string // extra text rendered in the explorer card
	LinkText   string
	NoDownload bool
	FileStatus int // status served for the PDF; zero means 200
	Body       []byte
}

// Server simulates the portal endpoints.
type Server struct {
	server *httptest.Server

	email    string
	password string
	studies  []Study

	mu            sync.RWMutex
	successPath   string
	omitEmail     bool
	extraLinks    []string
	downloadDelay time.Duration
	downloads     map[string]int

	loginPosts int32
}

// New starts a portal accepting exactly email/password.
func New(email, password string, studies ...Study) *Server {
	s := &Server{
		email:       email,
		password:    password,
		studies:     studies,
		successPath: "/dashboard",
		downloads:   make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/dashboard", s.requireSession(s.handleDashboard))
	mux.HandleFunc("/home", s.requireSession(s.handleDashboard))
	mux.HandleFunc("/explorer", s.requireSession(s.handleExplorer))
	mux.HandleFunc("/study/", s.requireSession(s.handleStudy))
	mux.HandleFunc(storagePrefix, s.handleObject)

	s.server = httptest.NewServer(mux)
	return s
}

func (s *Server) URL() string         { return s.server.URL }
func (s *Server) LoginURL() string    { return s.server.URL + "/login" }
func (s *Server) ExplorerURL() string { return s.server.URL + "/explorer" }
func (s *Server) Close()              { s.server.Close() }

func (s *Server) StudyURL(st Study) string {
	return fmt.Sprintf("%s/study/%s?type=%s", s.server.URL, st.ID, st.Type)
}

// FileURL mimics a pre-signed object-storage link.
func (s *Server) FileURL(st Study) string {
	return fmt.Sprintf("%s%s%s.pdf?X-Amz-Expires=3600&X-Amz-Signature=deadbeef", s.server.URL, storagePrefix, st.ID)
}

// SetSuccessPath changes where a correct login redirects to.
func (s *Server) SetSuccessPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successPath = path
}

// OmitEmailField renders the login form without its email input.
func (s *Server) OmitEmailField() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitEmail = true
}

// AddExplorerLinks appends raw hrefs to the explorer page after the studies.
func (s *Server) AddExplorerLinks(hrefs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extraLinks = append(s.extraLinks, hrefs...)
}

// SetDownloadDelay delays every object-storage response.
func (s *Server) SetDownloadDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadDelay = d
}

func (s *Server) LoginPosts() int { return int(atomic.LoadInt32(&s.loginPosts)) }

// Downloads reports how often the PDF of a study was requested.
func (s *Server) Downloads(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.downloads[id]
}

func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil || c.Value != "ok" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next(w, r)
	}
}

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html><head><title>Wellbin - Login</title></head>
<body>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/login">
  <input type="hidden" name="_token" value="{{.Token}}">
  {{if not .OmitEmail}}<input type="email" name="email" placeholder="Email">{{end}}
  <input type="password" name="password" placeholder="Password">
  <input type="checkbox" name="remember" value="1" checked>
  <button type="submit">Sign in</button>
</form>
</body></html>`))

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	omit, success := s.omitEmail, s.successPath
	s.mu.RUnlock()

	data := struct {
		Token     string
		OmitEmail bool
		Error     string
	}{Token: csrfToken, OmitEmail: omit}

	if r.Method == http.MethodPost {
		atomic.AddInt32(&s.loginPosts, 1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("_token") == csrfToken &&
			r.PostForm.Get("email") == s.email &&
			r.PostForm.Get("password") == s.password {
			http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "ok", Path: "/"})
			http.Redirect(w, r, success, http.StatusSeeOther)
			return
		}
		data.Error = "These credentials do not match our records."
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = loginPage.Execute(w, data)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<html><body><h1>Dashboard</h1><a href="/explorer">Explorer</a></body></html>`)
}

func (s *Server) handleExplorer(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	extra := append([]string(nil), s.extraLinks...)
	s.mu.RUnlock()

	var b bytes.Buffer
	b.WriteString(`<html><body><nav><a href="/dashboard">Dashboard</a><a href="/profile">Profile</a></nav><div class="studies">`)
	for _, st := range s.studies {
		fmt.Fprintf(&b, `<div class="study-card"><div class="meta"><span class="date">%s</span><a href="/study/%s?type=%s">View study</a></div></div>`,
			template.HTMLEscapeString(st.CardText), st.ID, st.Type)
	}
	for _, href := range extra {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, template.HTMLEscapeString(href))
	}
	b.WriteString(`</div></body></html>`)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(b.Bytes())
}

func (s *Server) handleStudy(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/study/")
	st, ok := s.find(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	var b bytes.Buffer
	b.WriteString(`<html><body><div class="study-detail">`)
	if st.ReportDate != "" {
		fmt.Fprintf(&b, `<div class="item-label">Report date</div><div class="item-value report-date">%s</div>`,
			template.HTMLEscapeString(st.ReportDate))
	}
	if !st.NoDownload {
		fmt.Fprintf(&b, `<a class="btn" href="%s">%s</a>`,
			template.HTMLEscapeString(s.FileURL(st)), template.HTMLEscapeString(st.LinkText))
	}
	b.WriteString(`<a href="/explorer">Back</a></div></body></html>`)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(b.Bytes())
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, storagePrefix), ".pdf")

	s.mu.Lock()
	s.downloads[id]++
	delay := s.downloadDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	st, ok := s.find(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if st.FileStatus != 0 && st.FileStatus != http.StatusOK {
		w.WriteHeader(st.FileStatus)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code></Error>`)
		return
	}

	body := st.Body
	if body == nil {
		body = MinimalPDF(1)
	}
	w.Header().Set("Content-Type", "application/pdf")
	_, _ = w.Write(body)
}

func (s *Server) find(id string) (Study, bool) {
	for _, st := range s.studies {
		if st.ID == id {
			return st, true
		}
	}
	return Study{}, false
}
