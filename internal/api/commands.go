package api

import (
	"encoding/json"
	"net/http"

	"github.com/talgya/pantheon/internal/engine"
	"github.com/talgya/pantheon/internal/world"
)

// Command types accepted by POST /api/v1/command.
const (
	CmdCreateFaction    = "create_faction"
	CmdRemoveFaction    = "remove_faction"
	CmdCastAction       = "cast_action"
	CmdDeclareWar       = "declare_war"
	CmdOfferPeace       = "offer_peace"
	CmdProposeAlliance  = "propose_alliance"
	CmdRespond          = "respond"
	CmdBreakAlliance    = "break_alliance"
	CmdSpecialize       = "choose_specialization"
	CmdSendMessage      = "send_message"
	maxCommandBodyBytes = 1 << 16
)

type commandRequest struct {
	Type           string               `json:"type"`
	Faction        string               `json:"faction,omitempty"`
	Target         string               `json:"target,omitempty"`
	Territory      string               `json:"territory,omitempty"`
	Action         string               `json:"action,omitempty"`
	Accept         bool                 `json:"accept,omitempty"`
	Text           string               `json:"text,omitempty"`
	Specialization world.Specialization `json:"specialization,omitempty"`
	Name           string               `json:"name,omitempty"`
	Color          string               `json:"color,omitempty"`
	Deity          string               `json:"deity,omitempty"`
	Policy         world.Policy         `json:"policy,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxCommandBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var res engine.Result
	switch req.Type {
	case CmdCreateFaction:
		res = s.Sim.CreateFaction(req.Name, req.Color, req.Deity, req.Policy)
	case CmdRemoveFaction:
		res = s.Sim.RemoveFaction(req.Faction)
	case CmdCastAction:
		res = s.Sim.CastAction(req.Faction, req.Action, req.Territory)
	case CmdDeclareWar:
		res = s.Sim.DeclareWar(req.Faction, req.Target)
	case CmdOfferPeace:
		res = s.Sim.OfferPeace(req.Faction, req.Target)
	case CmdProposeAlliance:
		res = s.Sim.ProposeAlliance(req.Faction, req.Target)
	case CmdRespond:
		res = s.Sim.Respond(req.Faction, req.Target, req.Accept)
	case CmdBreakAlliance:
		res = s.Sim.BreakAlliance(req.Faction, req.Target)
	case CmdSpecialize:
		res = s.Sim.ChooseSpecialization(req.Faction, req.Specialization)
	case CmdSendMessage:
		res = s.Sim.SendMessage(req.Faction, req.Target, req.Text)
	default:
		res = engine.Result{Error: "unknown command type " + req.Type, Code: engine.CodeInvalid}
	}
	writeJSONStatus(w, resultStatus(res), res)
}

// resultStatus maps a command result onto an HTTP status.
func resultStatus(res engine.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Code {
	case engine.CodeNotFound:
		return http.StatusNotFound
	case engine.CodeForbidden:
		return http.StatusForbidden
	case engine.CodeInsufficientPower, engine.CodeInvalidTransition:
		return http.StatusConflict
	}
	return http.StatusBadRequest
}
