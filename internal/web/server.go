// Package web implements the HTTP server of the stryd node. It mounts the
// JSON API, streams committed challenge events over a websocket and
// server-sent events, and serves the rendered documentation.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"stryd.mini/ledger/internal/api"
	"stryd.mini/ledger/internal/docs"
	"stryd.mini/ledger/internal/logger"
	"stryd.mini/ledger/internal/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	subscriberBuffer = 64
	historyOnConnect = 50
	keepAliveEvery   = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

// Server is the HTTP front of the node.
type Server struct {
	port       int
	logger     *logger.Logger
	broker     *broker
	apiService *api.Service
	docService *docs.Service
	httpServer *http.Server
}

// NewServer creates a new web server.
func NewServer(apiService *api.Service, docService *docs.Service, journal *logger.Logger, port int) *Server {
	return &Server{
		port:       port,
		logger:     journal,
		broker:     newBroker(),
		apiService: apiService,
		docService: docService,
	}
}

// Publish forwards the events of a committed block to stream subscribers.
// It matches the ABCI application's OnCommit hook; empty blocks send nothing.
func (s *Server) Publish(height int64, events []types.ChallengeEvent) {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("Warning: encode event at height %d: %v", height, err)
			continue
		}
		s.broker.broadcast(data)
	}
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes (delegated to apiService)
	mux.HandleFunc("/api/health", s.apiService.HandleHealth)
	mux.HandleFunc("/api/version", s.apiService.HandleVersion)
	mux.HandleFunc("/api/challenge", s.apiService.HandleChallenge)
	mux.HandleFunc("/api/challenges", s.apiService.HandleChallenges)
	mux.HandleFunc("/api/address", s.apiService.HandleAddress)
	mux.HandleFunc("/api/events", s.apiService.HandleEvents)
	mux.HandleFunc("/api/tx", s.apiService.HandleSubmitTx)
	mux.HandleFunc("/api/backups/create", s.apiService.HandleBackupCreate)
	mux.HandleFunc("/api/backups/list", s.apiService.HandleBackupsList)
	mux.HandleFunc("/api/peers", s.apiService.HandlePeers)

	// Streams
	mux.HandleFunc("/api/ws", s.handleEventsWS)
	mux.HandleFunc("/api/events/stream", s.handleEventsStream)

	mux.HandleFunc("/docs/", s.handleDoc)
	mux.HandleFunc("/docs", s.handleDoc)
	return mux
}

// Start runs the server until Shutdown. The returned channel yields the
// serve error, if any, and is then closed.
func (s *Server) Start() <-chan error {
	log.Printf("Web: Starting API server on http://localhost:%d", s.port)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops accepting requests and waits for handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleEventsWS sends recent events oldest first, then every committed
// event as it happens.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, ch := s.broker.subscribe(subscriberBuffer)
	defer s.broker.unsubscribe(id)

	history := s.logger.Events(historyOnConnect)
	for i := len(history) - 1; i >= 0; i-- {
		if err := conn.WriteJSON(history[i]); err != nil {
			return
		}
	}

	// The reader notices the peer closing; nothing is expected from it.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(keepAliveEvery)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// handleEventsStream is the server-sent events form of the feed, for
// clients that cannot open a websocket.
func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable proxy buffering

	id, ch := s.broker.subscribe(subscriberBuffer)
	defer s.broker.unsubscribe(id)
	fmt.Fprintf(w, ": subscribed %s\n\n", id)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveEvery)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: challenge\ndata: %s\n\n", data)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// handleDoc renders /docs/{name}; /docs lists the pages.
func (s *Server) handleDoc(w http.ResponseWriter, r *http.Request) {
	s.setCacheHeaders(w)

	docName := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/docs"), "/")
	docList, err := s.docService.ListDocs()
	if err != nil {
		log.Printf("Warning: list docs: %v", err)
	}

	var content string
	if docName != "" {
		content, err = s.docService.GetDoc(r.Context(), docName)
		if errors.Is(err, docs.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			s.logger.Error(fmt.Sprintf("Failed to load doc %s: %v", docName, err))
			http.Error(w, "Failed to render doc", http.StatusInternalServerError)
			return
		}
	}

	var buf bytes.Buffer
	if err := docPage.Execute(&buf, DocPageData{
		Version:    types.Version,
		DocList:    docList,
		CurrentDoc: docName,
		DocContent: template.HTML(content),
	}); err != nil {
		log.Printf("Error executing doc template: %s", err)
		http.Error(w, "Failed to render view", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// setCacheHeaders sets cache-busting headers to prevent browser caching.
func (s *Server) setCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}
