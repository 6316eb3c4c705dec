// Package thing exposes the Thing/PropertyKey URI space (spec §6) over
// HTTP: GET/PUT "/<thing-id>/<section>/<trait>/<prop>" with query
// modifiers, and GET/PUT on any other shape the thing's own
// ResourceLinkManager can resolve (whole sections, a thing's "f/..."
// address space). This is the one external surface through which a
// worked scenario like §8 scenario d is driven in practice: whatever
// reconfigures a Timer over the wire comes in through this package.
package thing

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/splot/domain/thing"
	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
	"github.com/R3E-Network/splot/infrastructure/httputil"
	"github.com/R3E-Network/splot/infrastructure/logging"
)

// Service serves the Thing URI space for every thing hosted in a Registry.
type Service struct {
	registry *thing.Registry
	log      *logging.Logger
}

// NewService builds a thing-URI Service bound to registry.
func NewService(registry *thing.Registry, log *logging.Logger) *Service {
	return &Service{registry: registry, log: log}
}

// RegisterRoutes mounts the catch-all "/{thingID}/{rest:.*}" GET/PUT routes
// on router. Register this after every other route on the same router:
// gorilla/mux matches in registration order, and this pattern would
// otherwise shadow fixed paths like "/metrics" or "/f/pmgr".
func (s *Service) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/{thingID}/{rest:.*}", s.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/{thingID}/{rest:.*}", s.handlePut).Methods(http.MethodPut)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	link, mods, err := s.resolve(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if pl, ok := link.(*thing.PropertyResourceLink); ok {
		v, err := pl.FetchWithModifiers(r.Context(), mods)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, v)
		return
	}

	v, err := link.Fetch(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (s *Service) handlePut(w http.ResponseWriter, r *http.Request) {
	link, mods, err := s.resolve(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var v value.Value
	if !httputil.DecodeJSON(w, r, &v) {
		return
	}

	if pl, ok := link.(*thing.PropertyResourceLink); ok {
		if err := pl.InvokeWithModifiers(r.Context(), &v, mods); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := link.Invoke(r.Context(), &v); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolve builds the ResourceLink the request addresses and parses its
// query modifiers. A property-shaped path ("<section>/<trait>/<prop>")
// resolves to a *PropertyResourceLink directly against the hosted Thing so
// the caller can thread modifiers through; anything else (a whole section,
// a thing's "f/..." function space) goes through the registry's general
// Resolve, which does not carry modifiers (spec §6 scopes "tt"/"all" etc.
// to single-property reads/writes).
func (s *Service) resolve(r *http.Request) (thing.ResourceLink, *thing.Modifiers, error) {
	vars := mux.Vars(r)
	thingID, rest := vars["thingID"], vars["rest"]

	mods, err := thing.ParseModifiers(r.URL.RawQuery)
	if err != nil {
		return nil, nil, err
	}

	if th, ok := s.registry.Thing(thingID); ok {
		if key, err := thing.ParsePropertyKey(rest); err == nil {
			return thing.NewPropertyResourceLink(th, key, nil), mods, nil
		}
	}

	link, err := s.registry.Resolve(r.Context(), thingID+"/"+rest)
	if err != nil {
		return nil, nil, err
	}
	return link, mods, nil
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if s.log != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("thing handler failed")
	}
	status := errors.GetHTTPStatus(err)
	httputil.WriteErrorResponse(w, r, status, "thing_error", err.Error(), nil)
}
