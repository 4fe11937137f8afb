package httpapi

import (
	"net/http"

	appChat "github.com/moving-hub/moving-hub/internal/application/chat"
	"github.com/moving-hub/moving-hub/internal/domain/chat"
)

type messageCreateRequest struct {
	Content     string  `json:"content"`
	MessageType string  `json:"messageType,omitempty"`
	ReplyTo     *string `json:"replyTo,omitempty"`
}

func (s *Server) getRequestChat(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "requestId")
	if err != nil {
		respondInvalid(w, "invalid requestId")
		return
	}
	auth := authUserFromContext(r.Context())
	c, err := s.chatSvc.GetChatByRequest(r.Context(), id, auth.UserID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	auth := authUserFromContext(r.Context())
	chats, err := s.chatSvc.ListChats(r.Context(), auth.UserID, limit, offset)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	if chats == nil {
		chats = []*chat.Chat{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"chats": chats})
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "chatId")
	if err != nil {
		respondInvalid(w, "invalid chatId")
		return
	}
	auth := authUserFromContext(r.Context())
	c, err := s.chatSvc.GetChat(r.Context(), id, auth.UserID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// listMessages returns one page, oldest first. Pass the first id of a page as
// before to fetch the page preceding it.
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "chatId")
	if err != nil {
		respondInvalid(w, "invalid chatId")
		return
	}
	limit, _ := parseLimitOffset(r, 50, 200)
	auth := authUserFromContext(r.Context())
	msgs, err := s.chatSvc.ListMessages(r.Context(), id, auth.UserID, r.URL.Query().Get("before"), limit)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*chat.Message{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "chatId")
	if err != nil {
		respondInvalid(w, "invalid chatId")
		return
	}
	var req messageCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondInvalid(w, err.Error())
		return
	}
	auth := authUserFromContext(r.Context())
	msg, err := s.chatSvc.PostMessage(r.Context(), appChat.PostInput{
		ChatID:      id,
		SenderID:    auth.UserID,
		Content:     req.Content,
		MessageType: req.MessageType,
		ReplyTo:     req.ReplyTo,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "chatId")
	if err != nil {
		respondInvalid(w, "invalid chatId")
		return
	}
	auth := authUserFromContext(r.Context())
	c, err := s.chatSvc.MarkReadAs(r.Context(), id, auth.UserID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}
