package server

import (
	"encoding/json"
	"net/http"

	gmux "github.com/gorilla/mux"
)

// AdminRouter serves read-only introspection of a running Server over HTTP:
//
//	GET /admin/stats     engine counters as JSON
//	GET /admin/services  advertised service names
//	GET /admin/healthz   200 once the server is open
type AdminRouter struct {
	*gmux.Router
	server *Server
}

func AdminRouterOf(s *Server) *AdminRouter {
	ar := &AdminRouter{server: s}
	ar.Router = gmux.NewRouter()
	ar.HandleFunc("/admin/stats", ar.statsHlr).Methods("GET")
	ar.HandleFunc("/admin/services", ar.servicesHlr).Methods("GET")
	ar.HandleFunc("/admin/healthz", ar.healthHlr).Methods("GET")
	return ar
}

func (ar *AdminRouter) statsHlr(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ar.server.Stats())
}

func (ar *AdminRouter) servicesHlr(w http.ResponseWriter, r *http.Request) {
	names := ar.server.serviceNames()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, names)
}

func (ar *AdminRouter) healthHlr(w http.ResponseWriter, r *http.Request) {
	if ar.server.Addr() == "" {
		http.Error(w, "not serving", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte(ar.server.Addr()))
}

func writeJSON(w http.ResponseWriter, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}
