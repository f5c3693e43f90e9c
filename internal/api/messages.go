package api

import (
	"fmt"
	"net/http"

	"chatter/internal/chat"

	"github.com/gorilla/mux"
)

type textMessageRequest struct {
	GroupId string `json:"group_id"`
	Content string `json:"content"`
}

type smartReplyRequest struct {
	GroupId string `json:"group_id"`
}

type smartReplyResponse struct {
	Suggestions []string `json:"suggestions"`
}

func (h *Handler) GroupMessages(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())

	views, err := h.Messages.History(r.Context(), who, mux.Vars(r)["groupId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// PostText runs the same pipeline as the realtime groupMessage event. There
// is no originating connection to exclude.
func (h *Handler) PostText(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())

	var req textMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	view, err := h.Messages.SendText(r.Context(), "", who, req.GroupId, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) PostImage(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())

	if err := parseMultipart(r); err != nil {
		writeError(w, err)
		return
	}
	img, err := formImage(r, "image")
	if err != nil {
		writeError(w, err)
		return
	}
	if img == nil {
		writeError(w, fmt.Errorf("%w: image file is required", chat.ErrValidation))
		return
	}

	view, err := h.Messages.SendImage(r.Context(), "", who, r.FormValue("group_id"), r.FormValue("content"), *img)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())

	if err := h.Messages.DeleteMessage(r.Context(), who, mux.Vars(r)["messageId"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Message deleted successfully"})
}

func (h *Handler) SmartReplies(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())

	var req smartReplyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	suggestions, err := h.Messages.SmartReplies(r.Context(), who, req.GroupId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, smartReplyResponse{Suggestions: suggestions})
}
