package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pquerna/ffjson/ffjson"

	"github.com/nhle/paddledesk/internal/model"
)

const maxBody = 1 << 20

// Server exposes a Worker over HTTP.
//
//	POST /push           deliver a push payload
//	POST /messages       request/reply port
//	GET  /notifications  stored notifications, newest first
//	GET  /events         NEW_NOTIFICATION stream (text/event-stream)
//	GET  /metrics        Prometheus metrics
type Server struct {
	w      *Worker
	router *mux.Router
	web    *http.Server
}

// NewServer creates a Server listening on addr once started.
func NewServer(w *Worker, addr string) *Server {
	s := &Server{
		w:      w,
		router: mux.NewRouter(),
	}
	s.router.HandleFunc("/push", s.handlePush).Methods(http.MethodPost)
	s.router.HandleFunc("/messages", s.handleMessage).Methods(http.MethodPost)
	s.router.HandleFunc("/notifications", s.handleList).Methods(http.MethodGet)
	s.router.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	s.router.Handle("/metrics", w.metrics.Handler()).Methods(http.MethodGet)

	s.web = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.w.log.Printf("[INFO] Worker is going online at %s\n", s.web.Addr)
		errCh <- s.web.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Streams never finish on their own; drop them before shutting down.
	s.w.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.web.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down worker server: %w", err)
	}
	s.w.log.Println("[INFO] Worker server has shut down.")
	return nil
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	s.w.log.Printf("[TRACE] Handle %s from %s\n", r.URL, r.RemoteAddr)

	var p model.PushPayload
	if err := readJSON(r, &p); err != nil {
		s.sendError(w, http.StatusBadRequest, err)
		return
	}

	n, err := s.w.Deliver(r.Context(), p)
	if err != nil {
		status := http.StatusInternalServerError
		if p.Title == "" {
			status = http.StatusBadRequest
		}
		s.sendError(w, status, err)
		return
	}
	s.sendJSON(w, http.StatusAccepted, &n)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	s.w.log.Printf("[TRACE] Handle %s from %s\n", r.URL, r.RemoteAddr)

	var msg Message
	if err := readJSON(r, &msg); err != nil {
		s.sendError(w, http.StatusBadRequest, err)
		return
	}

	reply, err := s.w.Request(r.Context(), msg)
	switch {
	case errors.Is(err, ErrNoController):
		s.sendError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, ErrUnknownMessage):
		s.sendError(w, http.StatusBadRequest, err)
	case err != nil:
		s.sendError(w, http.StatusInternalServerError, err)
	default:
		s.sendJSON(w, http.StatusOK, &reply)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.w.log.Printf("[TRACE] Handle %s from %s\n", r.URL, r.RemoteAddr)

	list, err := s.w.load(r.Context())
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err)
		return
	}
	s.sendJSON(w, http.StatusOK, list)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	ch, cancel := s.w.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.w.log.Printf("[DEBUG] %s subscribed to events\n", r.RemoteAddr)
	defer s.w.log.Printf("[DEBUG] %s unsubscribed from events\n", r.RemoteAddr)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			buf, err := ffjson.Marshal(&msg)
			if err != nil {
				s.w.log.Printf("[ERROR] Cannot serialize %s: %s\n", msg.Type, err)
				continue
			}
			_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, buf)
			ffjson.Pool(buf)
			if err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func readJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}
	if err := ffjson.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	buf, err := ffjson.Marshal(v)
	if err != nil {
		s.w.log.Printf("[ERROR] Cannot serialize response %T: %s\n", v, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer ffjson.Pool(buf)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf) // nolint: errcheck
}

func (s *Server) sendError(w http.ResponseWriter, status int, err error) {
	s.w.log.Printf("[ERROR] %s\n", err)
	s.sendJSON(w, status, &Message{Type: ErrorReply, Error: err.Error()})
}
