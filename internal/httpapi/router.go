package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	entitiesPrefix = "/api/v1/entities"
	eventsPath     = "/api/v1/events"
	reloadPath     = "/api/v1/reload"
)

// Router on the standard http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterHealthRoutes liveness probe
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}

// RegisterMonitorRoutes read model and operator routes
//
//	GET    /api/v1/entities
//	GET    /api/v1/entities/{id}
//	PUT    /api/v1/entities/{id}/thresholds/{metric}
//	PUT    /api/v1/entities/{id}/bindings/{metric}
//	POST   /api/v1/entities/{id}/refresh
//	POST   /api/v1/entities/{id}/members
//	DELETE /api/v1/entities/{id}/members/{member}
//	POST   /api/v1/reload
func (r *Router) RegisterMonitorRoutes(h *MonitorHandler) {
	r.Handle(reloadPath, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Reload(w, req)
	})

	r.Handle(entitiesPrefix, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListEntities(w, req)
	})

	r.Handle(entitiesPrefix+"/", func(w http.ResponseWriter, req *http.Request) {
		parts := strings.Split(strings.TrimPrefix(req.URL.Path, entitiesPrefix+"/"), "/")
		if parts[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		id := parts[0]

		switch {
		case len(parts) == 1:
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.GetEntity(w, req, id)
		case len(parts) == 3 && parts[1] == "thresholds":
			if req.Method != http.MethodPut {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.SetThreshold(w, req, id, parts[2])
		case len(parts) == 3 && parts[1] == "bindings":
			if req.Method != http.MethodPut {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Rebind(w, req, id, parts[2])
		case len(parts) == 2 && parts[1] == "refresh":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Refresh(w, req, id)
		case len(parts) == 2 && parts[1] == "members":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.AddMember(w, req, id)
		case len(parts) == 3 && parts[1] == "members":
			if req.Method != http.MethodDelete {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.RemoveMember(w, req, id, parts[2])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// RegisterEventRoutes GET /api/v1/events
func (r *Router) RegisterEventRoutes(h *EventHandler) {
	r.Handle(eventsPath, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListEvents(w, req)
	})
}
