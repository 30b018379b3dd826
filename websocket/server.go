// Package websocket streams orchestration events to dashboard clients.
package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/creator-match/negotiation-multi-agent/logger"
	"github.com/creator-match/negotiation-multi-agent/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard runs on a different origin in dev
	},
}

// EventServer broadcasts orchestration events over /ws. It satisfies the
// orchestrator's EventSink; Publish never blocks the pipeline.
type EventServer struct {
	hub    *Hub
	port   int
	server *http.Server
	log    *logger.Logger
	mu     sync.Mutex
}

// NewEventServer creates an event server listening on the given port.
func NewEventServer(port int) *EventServer {
	return &EventServer{
		hub:  NewHub(),
		port: port,
		log:  logger.New("event-server"),
	}
}

// Start begins accepting websocket clients.
func (s *EventServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	go s.hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go func() {
		s.log.Infof("event server listening on :%d", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("event server stopped: %v", err)
		}
	}()
	return nil
}

// Stop closes the listener. Connected clients are dropped.
func (s *EventServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// Publish marshals the event and broadcasts it to all clients. Marshal
// failures and full buffers drop the event; the pipeline never waits on
// the dashboard.
func (s *EventServer) Publish(ev types.OrchestrationEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Warnf("dropping unmarshalable event %s: %v", ev.Type, err)
		return
	}
	s.hub.Broadcast(data)
}

func (s *EventServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	client := NewClient(s.hub, conn)
	client.hub.register <- client
	go client.writePump()
	go client.readPump()
}

func (s *EventServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}
