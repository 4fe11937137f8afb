package httpapi

import (
	"net/http"
	"strings"

	appUser "github.com/moving-hub/moving-hub/internal/application/user"
	domainUser "github.com/moving-hub/moving-hub/internal/domain/user"
)

type userUpdateRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
	Role        *string `json:"role,omitempty"`
	Status      *string `json:"status,omitempty"`
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 100, 200)
	filter := domainUser.Filter{}
	if v := r.URL.Query().Get("role"); v != "" {
		role := domainUser.Role(strings.ToUpper(v))
		if err := domainUser.ValidateRole(role); err != nil {
			respondInvalid(w, err.Error())
			return
		}
		filter.Role = &role
	}
	if v := r.URL.Query().Get("status"); v != "" {
		st := domainUser.Status(strings.ToUpper(v))
		filter.Status = &st
	}
	if v := r.URL.Query().Get("username"); v != "" {
		name := domainUser.NormalizeUsername(v)
		filter.Username = &name
	}
	users, err := s.userSvc.ListUsers(r.Context(), filter, limit, offset)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// getUser returns any account to admins and the caller's own account to
// everyone else.
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "userId")
	if err != nil {
		respondInvalid(w, "invalid userId")
		return
	}
	auth := authUserFromContext(r.Context())
	if auth.Role != domainUser.RoleAdmin && auth.UserID != id {
		respondError(w, http.StatusForbidden, codeForbidden, "insufficient role")
		return
	}
	u, err := s.userSvc.GetUser(r.Context(), id)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

// updateUser lets users rename themselves; only admins change role or status.
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "userId")
	if err != nil {
		respondInvalid(w, "invalid userId")
		return
	}
	var req userUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		respondInvalid(w, err.Error())
		return
	}
	auth := authUserFromContext(r.Context())
	isAdmin := auth.Role == domainUser.RoleAdmin
	if !isAdmin && (auth.UserID != id || req.Role != nil || req.Status != nil) {
		respondError(w, http.StatusForbidden, codeForbidden, "insufficient role")
		return
	}

	input := appUser.UpdateInput{DisplayName: req.DisplayName}
	if req.Role != nil {
		role := domainUser.Role(strings.ToUpper(*req.Role))
		input.Role = &role
	}
	if req.Status != nil {
		st := domainUser.Status(strings.ToUpper(*req.Status))
		input.Status = &st
	}
	u, err := s.userSvc.UpdateUser(r.Context(), id, input)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}
