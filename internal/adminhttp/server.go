// Package adminhttp exposes a read-only chi-routed diagnostics surface
// over the same aggregate state the picker consumes: a liveness probe, the
// last published topology, and the live subchannel set with their
// connectivity states.
package adminhttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/webitel/cluster-grpclb/internal/clusterbalancer"
	"github.com/webitel/cluster-grpclb/internal/clusterresolver"
	"github.com/webitel/cluster-grpclb/internal/clustertypes"
)

// TopologySource is the minimal view adminhttp needs of the resolver.
type TopologySource interface {
	Snapshot() (clustertypes.Topology, bool)
}

// SubchannelSource is the minimal view adminhttp needs of the balancer.
type SubchannelSource interface {
	Subchannels() []clusterbalancer.SubchannelInfo
}

// Server wraps a chi.Router serving /healthz, /topology, /subchannels.
type Server struct {
	router     chi.Router
	topology   TopologySource
	subchannel SubchannelSource
}

var (
	_ TopologySource   = (*clusterresolver.Handle)(nil)
	_ SubchannelSource = (*clusterbalancer.Handle)(nil)
)

// New builds a Server. Either source may be nil, in which case its
// endpoint reports an empty/unknown result rather than panicking.
func New(topology TopologySource, subchannel SubchannelSource) *Server {
	s := &Server{topology: topology, subchannel: subchannel}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/topology", s.handleTopology)
	r.Get("/subchannels", s.handleSubchannels)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

type healthzResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{Status: "ok", Time: time.Now()})
}

type topologyResponse struct {
	Published bool                `json:"published"`
	Nodes     []clustertypes.Node `json:"nodes,omitempty"`
	Count     int                 `json:"count"`
	Eligible  int                 `json:"eligible_count"`
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	if s.topology == nil {
		writeJSON(w, http.StatusOK, topologyResponse{})
		return
	}
	top, ok := s.topology.Snapshot()
	writeJSON(w, http.StatusOK, topologyResponse{
		Published: ok,
		Nodes:     top.Nodes,
		Count:     top.Count,
		Eligible:  top.EligibleCount,
	})
}

type subchannelsResponse struct {
	Subchannels []clusterbalancer.SubchannelInfo `json:"subchannels"`
}

func (s *Server) handleSubchannels(w http.ResponseWriter, r *http.Request) {
	if s.subchannel == nil {
		writeJSON(w, http.StatusOK, subchannelsResponse{})
		return
	}
	writeJSON(w, http.StatusOK, subchannelsResponse{Subchannels: s.subchannel.Subchannels()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
