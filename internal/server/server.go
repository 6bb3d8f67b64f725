// Package server exposes dashboard sessions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/KaramelBytes/custlens/internal/dashboard"
	"github.com/KaramelBytes/custlens/internal/router"
)

// Server routes HTTP requests to dashboard sessions.
type Server struct {
	manager *dashboard.Manager
	logger  *zap.Logger
	mux     chi.Router
}

// New builds the HTTP surface over m.
func New(m *dashboard.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{manager: m, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/recipes", s.handleRecipes)
	r.Post("/dataset/reload", s.handleReload)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleSessions)
		r.Post("/", s.handleOpen)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleSession)
			r.Delete("/", s.handleClose)
			r.Put("/widgets/{widget}", s.handleWidget)
			r.Get("/kpis", s.handleKPIs)
			r.Get("/describe", s.handleDescribe)
			r.Get("/panels", s.handlePanels)
			r.Get("/panels/{panel}", s.handlePanel)
			r.Get("/panels/{panel}/chart", s.handleChart)
		})
	})
	s.mux = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*dashboard.Session, bool) {
	sess, err := s.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return sess, true
}

// panelID returns the unescaped panel parameter; univariate panel IDs contain a colon and
// column names may contain spaces. chi matches on RawPath when the request has one, so the
// parameter is still escaped only then.
func panelID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "panel")
	if r.URL.RawPath == "" {
		return id, nil
	}
	return url.PathUnescape(id)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	out := []sessionView{}
	for _, id := range s.manager.IDs() {
		sess, err := s.manager.Get(id)
		if err != nil {
			// closed since IDs was read
			continue
		}
		out = append(out, newSessionView(sess))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Open()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newSessionView(sess))
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, newSessionView(sess))
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Close(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var u dashboard.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiError{Code: "bad_request", Message: fmt.Sprintf("decode body: %v", err)})
		return
	}
	u.Widget = chi.URLParam(r, "widget")
	if err := sess.Apply(u); err != nil {
		if errors.Is(err, dashboard.ErrUnknownWidget) {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusUnprocessableEntity, apiError{Code: "invalid_widget_value", Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Widgets())
}

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	k, err := sess.KPIs()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newKPIView(k))
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	rep, err := sess.Describe()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(rep.Markdown()))
		return
	}
	s.writeJSON(w, http.StatusOK, newDescribeView(rep))
}

func (s *Server) handlePanels(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	results := sess.Panels()
	out := make([]panelView, len(results))
	for i, res := range results {
		out[i] = newPanelView(sess.ID, res)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	res, ok := s.panel(w, r)
	if !ok {
		return
	}
	status := http.StatusOK
	if res.Err != nil {
		status = statusOf(res.Err)
	}
	s.writeJSON(w, status, newPanelView(chi.URLParam(r, "id"), res))
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	res, ok := s.panel(w, r)
	if !ok {
		return
	}
	if res.Err != nil {
		s.writeError(w, res.Err)
		return
	}
	img := res.Outcome.Image
	w.Header().Set("Content-Type", img.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img.Data)
}

func (s *Server) panel(w http.ResponseWriter, r *http.Request) (dashboard.PanelResult, bool) {
	sess, ok := s.session(w, r)
	if !ok {
		return dashboard.PanelResult{}, false
	}
	id, err := panelID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiError{Code: "bad_request", Message: err.Error()})
		return dashboard.PanelResult{}, false
	}
	res, err := sess.Panel(id)
	if err != nil {
		s.writeError(w, err)
		return dashboard.PanelResult{}, false
	}
	return res, true
}

func (s *Server) handleRecipes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, newRecipesView(s.manager.Router().Table()))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Reload(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, dashboard.ErrUnknownSession),
		errors.Is(err, dashboard.ErrUnknownPanel),
		errors.Is(err, dashboard.ErrUnknownWidget):
		return http.StatusNotFound
	case router.IsRecoverable(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	code := string(router.Code(err))
	switch {
	case status == http.StatusNotFound:
		code = "not_found"
	case code == "":
		code = "internal"
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, apiError{Code: code, Message: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode response", zap.Error(err))
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
