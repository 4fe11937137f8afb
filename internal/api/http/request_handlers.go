package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/moving-hub/moving-hub/internal/application/negotiation"
	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
)

type requestCreateRequest struct {
	MoverID        string          `json:"moverId"`
	ServiceType    string          `json:"serviceType"`
	PickupAddress  string          `json:"pickupAddress"`
	DropoffAddress string          `json:"dropoffAddress"`
	ScheduledDate  string          `json:"scheduledDate"`
	Details        json.RawMessage `json:"details,omitempty"`
}

// actionRequest is the body shared by the negotiation endpoints. IfVersion
// turns the action into a compare-and-set on the request version.
type actionRequest struct {
	Amount    json.Number `json:"amount,omitempty"`
	Status    string      `json:"status,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	IfVersion *int64      `json:"ifVersion,omitempty"`
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var req requestCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondInvalid(w, err.Error())
		return
	}
	moverID, err := uuid.Parse(req.MoverID)
	if err != nil {
		respondInvalid(w, "invalid moverId")
		return
	}
	scheduled, err := time.Parse(time.RFC3339, req.ScheduledDate)
	if err != nil {
		respondInvalid(w, "scheduledDate must be RFC3339")
		return
	}
	auth := authUserFromContext(r.Context())
	created, err := s.engine.CreateRequest(r.Context(), auth.UserID, negotiation.CreateInput{
		MoverID:        moverID,
		ServiceType:    req.ServiceType,
		PickupAddress:  req.PickupAddress,
		DropoffAddress: req.DropoffAddress,
		ScheduledDate:  scheduled,
		Details:        req.Details,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	var status *servicerequest.Status
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := servicerequest.ParseStatus(v)
		if err != nil {
			s.respondAppError(w, r, err)
			return
		}
		status = &st
	}
	auth := authUserFromContext(r.Context())
	list, err := s.engine.ListRequests(r.Context(), auth.UserID, auth.Role, status, limit, offset)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	if list == nil {
		list = []*servicerequest.ServiceRequest{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"requests": list})
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "requestId")
	if err != nil {
		respondInvalid(w, "invalid requestId")
		return
	}
	auth := authUserFromContext(r.Context())
	req, err := s.engine.GetRequest(r.Context(), id, auth.UserID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (s *Server) proposePrice(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(a negotiation.Action, body actionRequest) (*servicerequest.ServiceRequest, error) {
		return s.engine.ProposePrice(r.Context(), a, body.Amount.String())
	})
}

func (s *Server) counterOffer(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(a negotiation.Action, body actionRequest) (*servicerequest.ServiceRequest, error) {
		return s.engine.CounterOffer(r.Context(), a, body.Amount.String())
	})
}

func (s *Server) acceptPrice(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(a negotiation.Action, _ actionRequest) (*servicerequest.ServiceRequest, error) {
		return s.engine.AcceptPrice(r.Context(), a)
	})
}

func (s *Server) acceptCounter(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(a negotiation.Action, _ actionRequest) (*servicerequest.ServiceRequest, error) {
		return s.engine.AcceptCounter(r.Context(), a)
	})
}

func (s *Server) advanceStatus(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(a negotiation.Action, body actionRequest) (*servicerequest.ServiceRequest, error) {
		return s.engine.AdvanceStatus(r.Context(), a, body.Status)
	})
}

func (s *Server) cancelRequest(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(a negotiation.Action, body actionRequest) (*servicerequest.ServiceRequest, error) {
		return s.engine.Cancel(r.Context(), a, body.Reason)
	})
}

type actionFunc func(a negotiation.Action, body actionRequest) (*servicerequest.ServiceRequest, error)

func (s *Server) runAction(w http.ResponseWriter, r *http.Request, fn actionFunc) {
	id, err := parseUUIDParam(r, "requestId")
	if err != nil {
		respondInvalid(w, "invalid requestId")
		return
	}
	var body actionRequest
	if err := decodeOptionalBody(r, &body); err != nil {
		respondInvalid(w, err.Error())
		return
	}
	auth := authUserFromContext(r.Context())
	req, err := fn(negotiation.Action{RequestID: id, ActorID: auth.UserID, IfVersion: body.IfVersion}, body)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}
