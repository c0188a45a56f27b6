package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/raine/listing-studio/internal/clipboard"
	"github.com/raine/listing-studio/internal/listing"
	"github.com/raine/listing-studio/internal/media"
	"github.com/raine/listing-studio/internal/session"
	"github.com/raine/listing-studio/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

// HistoryLister returns recently logged generations.
type HistoryLister interface {
	RecentGenerations(limit int) ([]storage.GenerationLogEntry, error)
}

// Options configures a Server.
type Options struct {
	Workspace *session.Workspace
	Copier    *clipboard.Copier
	// History is optional; /api/generations answers 404 without it.
	History HistoryLister
	// MaxUploadBytes limits multipart uploads. Zero selects media.DefaultMaxImageSize.
	MaxUploadBytes int64
}

// Server is the HTTP surface of the listing studio.
type Server struct {
	workspace *session.Workspace
	copier    *clipboard.Copier
	history   HistoryLister
	maxUpload int64
	tmpl      *template.Template

	// inflight tracks detached generations so shutdown can wait for them
	inflight sync.WaitGroup

	copyMu   sync.Mutex
	copySubs map[chan struct{}]struct{}
}

// NewServer creates a Server and parses its templates.
func NewServer(opts Options) (*Server, error) {
	if opts.Workspace == nil || opts.Copier == nil {
		return nil, errors.New("workspace and copier are required")
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = media.DefaultMaxImageSize
	}

	s := &Server{
		workspace: opts.Workspace,
		copier:    opts.Copier,
		history:   opts.History,
		maxUpload: maxUpload,
		tmpl:      tmpl,
		copySubs:  make(map[chan struct{}]struct{}),
	}
	s.copier.OnChange(s.notifyCopy)
	return s, nil
}

// Handler returns the router with all routes and middleware installed.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	p := r.PathPrefix("/platforms/{platform}").Subrouter()
	p.HandleFunc("/image", s.handleUpload).Methods(http.MethodPost)
	p.HandleFunc("/image-url", s.handleImageURL).Methods(http.MethodPost)
	p.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	p.HandleFunc("/copy", s.handleCopy).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/platforms/{platform}", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/generations", s.handleHistory).Methods(http.MethodGet)

	return r
}

// Wait blocks until every detached generation has finished.
func (s *Server) Wait() {
	s.inflight.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"model":  s.workspace.Model(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	active := listing.Amazon
	if q := r.URL.Query().Get("platform"); q != "" {
		p, err := listing.ParsePlatform(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		active = p
	}

	view, err := s.platformView(active)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	tabs := make([]tabView, 0, len(listing.Platforms()))
	for _, p := range listing.Platforms() {
		tabs = append(tabs, tabView{Platform: p, Name: p.DisplayName(), Active: p == active})
	}

	data := pageData{
		Tabs:   tabs,
		View:   view,
		URL:    r.URL.Query().Get("url"),
		Model:  s.workspace.Model(),
		Toast:  s.copier.Toast(),
		Active: active,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		log.Error().Err(err).Msg("failed to execute template")
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	p, ok := platformParam(w, r)
	if !ok {
		return
	}
	view, err := s.platformView(p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := platformParam(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("image file is required: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err))
		return
	}
	if int64(len(data)) > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("image exceeds %d bytes", s.maxUpload))
		return
	}

	accepted, err := s.workspace.AcquireFromFile(p, data, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, r, p, http.StatusOK, map[string]any{"accepted": accepted}, nil)
}

func (s *Server) handleImageURL(w http.ResponseWriter, r *http.Request) {
	p, ok := platformParam(w, r)
	if !ok {
		return
	}
	rawURL := r.FormValue("url")

	// The fetch outlives the request; a closed tab doesn't abort it
	ctx := context.WithoutCancel(r.Context())
	acquired, err := s.workspace.AcquireFromURL(ctx, p, rawURL)
	if errors.Is(err, listing.ErrUnknownPlatform) {
		writeError(w, http.StatusNotFound, err)
		return
	}

	// A failed URL stays in the input so the user can correct it
	var keep url.Values
	if err != nil {
		keep = url.Values{"url": {rawURL}}
	}
	s.respond(w, r, p, http.StatusOK, map[string]any{"clearUrlInput": acquired}, keep)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	p, ok := platformParam(w, r)
	if !ok {
		return
	}

	done := s.startGeneration(context.WithoutCancel(r.Context()), p)

	if !wantsJSON(r) {
		// The page shows the loading state and reloads when the result lands
		http.Redirect(w, r, pageURL(p, nil), http.StatusSeeOther)
		return
	}

	select {
	case err := <-done:
		if errors.Is(err, session.ErrNoImage) || errors.Is(err, session.ErrBusy) {
			writeError(w, http.StatusConflict, err)
			return
		}
		s.respond(w, r, p, http.StatusOK, nil, nil)
	case <-r.Context().Done():
		log.Debug().Str("platform", string(p)).Msg("client left before generation finished")
	}
}

// startGeneration runs Generate detached from any request. The returned
// channel receives its error once.
func (s *Server) startGeneration(ctx context.Context, p listing.Platform) <-chan error {
	done := make(chan error, 1)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		err := s.workspace.Generate(ctx, p)
		if err != nil && !errors.Is(err, session.ErrNoImage) {
			log.Debug().Err(err).Str("platform", string(p)).Msg("generate request finished with error")
		}
		done <- err
	}()
	return done
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	p, ok := platformParam(w, r)
	if !ok {
		return
	}
	key := r.FormValue("field")

	st, err := s.workspace.Snapshot(p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	field, found := listing.LookupField(st.Result, p, key)
	if !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("no field %q for %s", key, p))
		return
	}

	if err := s.copier.Copy(elementID(p, field.Key), field.Label, field.Text); err != nil {
		log.Warn().Err(err).Str("platform", string(p)).Str("field", key).Msg("clipboard write failed")
		writeError(w, http.StatusInternalServerError, fmt.Errorf("clipboard write failed: %w", err))
		return
	}
	log.Debug().Str("platform", string(p)).Str("field", key).Msg("field copied")

	s.respond(w, r, p, http.StatusOK, map[string]any{
		"text":  field.Text,
		"toast": s.copier.Toast(),
	}, nil)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("generation history is disabled"))
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	entries, err := s.history.RecentGenerations(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []storage.GenerationLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// respond answers a command. JSON clients get the platform view merged
// with extra; browsers are redirected back to the platform's tab.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, p listing.Platform, status int, extra map[string]any, query url.Values) {
	if !wantsJSON(r) {
		http.Redirect(w, r, pageURL(p, query), http.StatusSeeOther)
		return
	}
	view, err := s.platformView(p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	body := map[string]any{"view": view}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func platformParam(w http.ResponseWriter, r *http.Request) (listing.Platform, bool) {
	p, err := listing.ParsePlatform(mux.Vars(r)["platform"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return "", false
	}
	return p, true
}

func pageURL(p listing.Platform, extra url.Values) string {
	q := url.Values{"platform": {string(p)}}
	for k, v := range extra {
		q[k] = v
	}
	return "/?" + q.Encode()
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) subscribeCopy() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.copyMu.Lock()
	s.copySubs[ch] = struct{}{}
	s.copyMu.Unlock()
	return ch, func() {
		s.copyMu.Lock()
		delete(s.copySubs, ch)
		s.copyMu.Unlock()
	}
}

// notifyCopy coalesces copy confirmation changes into one pending signal
// per subscriber.
func (s *Server) notifyCopy() {
	s.copyMu.Lock()
	defer s.copyMu.Unlock()
	for ch := range s.copySubs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
