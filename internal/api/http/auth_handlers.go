package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	appAuth "github.com/moving-hub/moving-hub/internal/application/auth"
	domainUser "github.com/moving-hub/moving-hub/internal/domain/user"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

type loginResponse struct {
	User         *domainUser.User `json:"user"`
	SessionID    string           `json:"sessionId"`
	ExpiresAt    string           `json:"expiresAt"`
	SessionToken string           `json:"sessionToken"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		respondInvalid(w, err.Error())
		return
	}
	userAgent, ip := clientInfo(r)
	res, err := s.authSvc.Register(r.Context(), appAuth.RegisterInput{
		Username:    req.Username,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Password:    req.Password,
		Role:        domainUser.Role(strings.ToUpper(strings.TrimSpace(req.Role))),
		UserAgent:   &userAgent,
		IPAddress:   &ip,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.startSession(w, http.StatusCreated, res)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		respondInvalid(w, err.Error())
		return
	}
	userAgent, ip := clientInfo(r)
	res, err := s.authSvc.Login(r.Context(), req.Username, req.Password, &userAgent, &ip)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.startSession(w, http.StatusOK, res)
}

func (s *Server) startSession(w http.ResponseWriter, status int, res *appAuth.LoginResult) {
	cookie := &http.Cookie{
		Name:     s.sessionCookieName,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.Session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.sessionCookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)

	respondJSON(w, status, loginResponse{
		User:         res.User,
		SessionID:    res.Session.SessionID.String(),
		ExpiresAt:    res.Session.ExpiresAt.Format(time.RFC3339),
		SessionToken: res.Token,
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r, s.sessionCookieName)
	if err := s.authSvc.Logout(r.Context(), token); err != nil {
		s.respondAppError(w, r, err)
		return
	}

	cookie := &http.Cookie{
		Name:     s.sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.sessionCookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	}
	http.SetCookie(w, cookie)
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "OK"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, codeUnauthorized, "missing auth")
		return
	}
	u, err := s.userSvc.GetUser(r.Context(), auth.UserID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func clientInfo(r *http.Request) (userAgent, ip string) {
	ip = r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return r.UserAgent(), ip
}
