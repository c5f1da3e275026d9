// Package statusapi is an optional debug HTTP server exposing a running
// controller's live topology, as plain JSON — ambient observability, not
// part of the wire protocol, off by default.
//
// Grounded on the teacher's pkg/hypervisor.Hypervisor.ServeHTTP: a chi
// router mounted under /api, one read-only handler per resource, JSON
// written straight from a small response struct.
package statusapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/gaecan04/krusty-club/pkg/controller"
	"github.com/gaecan04/krusty-club/pkg/packet"
)

// Server exposes a controller's topology and live event counters over
// HTTP. It never mutates anything; every endpoint is a GET.
type Server struct {
	ctrl *controller.Controller

	mu      sync.Mutex
	sent    uint64
	dropped uint64
	rescued uint64
}

// New wraps ctrl and starts a background goroutine tallying its event
// stream.
func New(ctrl *controller.Controller) *Server {
	s := &Server{ctrl: ctrl}
	go s.countEvents()
	return s
}

func (s *Server) countEvents() {
	for e := range s.ctrl.Subscribe() {
		s.mu.Lock()
		switch e.Kind {
		case controller.EventPacketSent:
			s.sent++
		case controller.EventPacketDropped:
			s.dropped++
		case controller.EventControllerShortcut:
			s.rescued++
		}
		s.mu.Unlock()
	}
}

func (s *Server) snapshot() (sent, dropped, rescued uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.dropped, s.rescued
}

// Handler builds the chi router this server answers requests with.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(5 * time.Second))
	r.Route("/api", func(r chi.Router) {
		r.Get("/topology", s.getTopology())
		r.Get("/counters", s.getCounters())
	})
	return r
}

type nodeView struct {
	ID        packet.NodeID   `json:"id"`
	Role      string          `json:"role"`
	Neighbors []packet.NodeID `json:"neighbors"`
}

func (s *Server) getTopology() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g := s.ctrl.Graph()
		var nodes []nodeView
		for _, role := range []packet.NodeRole{packet.RoleDrone, packet.RoleClient, packet.RoleServer} {
			for _, id := range g.NodesByRole(role) {
				nodes = append(nodes, nodeView{ID: id, Role: role.String(), Neighbors: g.Neighbors(id)})
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
	}
}

type counters struct {
	PacketsSent     uint64 `json:"packets_sent"`
	PacketsDropped  uint64 `json:"packets_dropped"`
	ShortcutRescues uint64 `json:"shortcut_rescues"`
}

func (s *Server) getCounters() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sent, dropped, rescued := s.snapshot()
		writeJSON(w, http.StatusOK, counters{PacketsSent: sent, PacketsDropped: dropped, ShortcutRescues: rescued})
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
