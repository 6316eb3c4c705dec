package automation

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/splot/domain/automation"
	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
	"github.com/R3E-Network/splot/infrastructure/httputil"
)

// ---------------------------------------------------------------------------
// Wire DTOs
// ---------------------------------------------------------------------------

// actionDTO is an Action as it travels over the management HTTP API. Body
// is accepted as a plain string; ContentType says how to interpret it.
type actionDTO struct {
	Path        string `json:"path"`
	Method      string `json:"method,omitempty"`
	Body        string `json:"body,omitempty"`
	HasBody     bool   `json:"has_body,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Skip        bool   `json:"skip,omitempty"`
	Sync        int    `json:"sync,omitempty"`
	Description string `json:"description,omitempty"`
}

func (a actionDTO) toAction() automation.Action {
	act := automation.Action{
		Path:        a.Path,
		Method:      a.Method,
		HasBody:     a.HasBody,
		ContentType: a.ContentType,
		Skip:        a.Skip,
		Sync:        automation.SyncMode(a.Sync),
		Description: a.Description,
	}
	if a.HasBody {
		act.Body = value.Text(a.Body)
	}
	return act
}

func actionsToDomain(dtos []actionDTO) []automation.Action {
	out := make([]automation.Action, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toAction())
	}
	return out
}

type pairingRequest struct {
	SourceURI    string `json:"source_uri"`
	DestURI      string `json:"dest_uri"`
	Push         bool   `json:"push"`
	Pull         bool   `json:"pull"`
	ForwardXform string `json:"forward_xform,omitempty"`
	ReverseXform string `json:"reverse_xform,omitempty"`
}

func (r pairingRequest) toConfig() automation.PairingConfig {
	return automation.PairingConfig{
		SourceURI:    r.SourceURI,
		DestURI:      r.DestURI,
		Push:         r.Push,
		Pull:         r.Pull,
		ForwardXform: r.ForwardXform,
		ReverseXform: r.ReverseXform,
	}
}

type ruleCondition struct {
	URI  string `json:"uri"`
	Expr string `json:"expr"`
}

type ruleRequest struct {
	Conditions []ruleCondition `json:"conditions"`
	Match      string          `json:"match,omitempty"`
	Actions    []actionDTO     `json:"actions"`
}

func (r ruleRequest) toConfig() automation.RuleConfig {
	conds := make([]automation.ConditionConfig, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		conds = append(conds, automation.ConditionConfig{URI: c.URI, Expr: c.Expr})
	}
	match := automation.MatchMode(r.Match)
	if match == "" {
		match = automation.MatchAll
	}
	return automation.RuleConfig{Conditions: conds, Match: match, Actions: actionsToDomain(r.Actions)}
}

type timerRequest struct {
	Schedule  string      `json:"schedule"`
	Predicate string      `json:"predicate,omitempty"`
	AutoReset bool        `json:"auto_reset,omitempty"`
	Actions   []actionDTO `json:"actions"`
}

func (r timerRequest) toConfig() automation.TimerConfig {
	return automation.TimerConfig{
		Schedule:  r.Schedule,
		Predicate: r.Predicate,
		AutoReset: r.AutoReset,
		Actions:   actionsToDomain(r.Actions),
	}
}

type idResponse struct {
	ID string `json:"id"`
}

type idsResponse struct {
	IDs []string `json:"ids"`
}

// ---------------------------------------------------------------------------
// Pairing handlers
// ---------------------------------------------------------------------------

func (s *Service) handleListPairings(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, idsResponse{IDs: s.mgr.IDs(automation.KindPairing)})
}

func (s *Service) handleCreatePairing(w http.ResponseWriter, r *http.Request) {
	var req pairingRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	id, err := s.mgr.CreatePairing(r.Context(), req.toConfig())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.feed.publish(changeEvent{Kind: "pmgr", ID: id, Event: "created"})
	httputil.RespondCreated(w, idResponse{ID: id})
}

func (s *Service) handleGetPairing(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.mgr.Pairing(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, idResponse{ID: id})
}

func (s *Service) handleDeletePairing(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.mgr.Delete(automation.KindPairing, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.feed.publish(changeEvent{Kind: "pmgr", ID: id, Event: "deleted"})
	httputil.RespondNoContent(w)
}

// ---------------------------------------------------------------------------
// Rule handlers
// ---------------------------------------------------------------------------

func (s *Service) handleListRules(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, idsResponse{IDs: s.mgr.IDs(automation.KindRule)})
}

func (s *Service) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	id, err := s.mgr.CreateRule(r.Context(), req.toConfig())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.feed.publish(changeEvent{Kind: "rmgr", ID: id, Event: "created"})
	httputil.RespondCreated(w, idResponse{ID: id})
}

func (s *Service) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.mgr.Rule(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, idResponse{ID: id})
}

func (s *Service) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.mgr.Delete(automation.KindRule, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.feed.publish(changeEvent{Kind: "rmgr", ID: id, Event: "deleted"})
	httputil.RespondNoContent(w)
}

// ---------------------------------------------------------------------------
// Timer handlers
// ---------------------------------------------------------------------------

func (s *Service) handleListTimers(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, idsResponse{IDs: s.mgr.IDs(automation.KindTimer)})
}

func (s *Service) handleCreateTimer(w http.ResponseWriter, r *http.Request) {
	var req timerRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	id, err := s.mgr.CreateTimer(r.Context(), req.toConfig())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.feed.publish(changeEvent{Kind: "tmgr", ID: id, Event: "created"})
	httputil.RespondCreated(w, idResponse{ID: id})
}

func (s *Service) handleGetTimer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tm, err := s.mgr.Timer(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct {
		ID    string `json:"id"`
		State string `json:"state"`
		Count int64  `json:"count"`
	}{ID: id, State: string(tm.State()), Count: tm.Count()})
}

func (s *Service) handleDeleteTimer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.mgr.Delete(automation.KindTimer, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.feed.publish(changeEvent{Kind: "tmgr", ID: id, Event: "deleted"})
	httputil.RespondNoContent(w)
}

func (s *Service) handleDisableTimer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tm, err := s.mgr.Timer(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tm.Disable()
	s.feed.publish(changeEvent{Kind: "tmgr", ID: id, Event: "disabled"})
	httputil.RespondNoContent(w)
}

// ---------------------------------------------------------------------------
// Snapshot handlers
// ---------------------------------------------------------------------------

func (s *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.mgr.Snapshot()
	raw, err := snap.MarshalJSON()
	if err != nil {
		s.writeError(w, r, errors.Internal("marshal snapshot", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Service) handleRestore(w http.ResponseWriter, r *http.Request) {
	var snap value.Value
	if !httputil.DecodeJSON(w, r, &snap) {
		return
	}
	if err := s.mgr.Restore(r.Context(), snap); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.RespondNoContent(w)
}

// writeError maps a ServiceError (or any error) to the appropriate HTTP
// status and body.
func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if s.log != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("automation handler failed")
	}
	status := errors.GetHTTPStatus(err)
	httputil.WriteErrorResponse(w, r, status, "automation_error", err.Error(), nil)
}
