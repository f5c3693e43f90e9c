package api

import (
	"net/http"

	"chatter/internal/groups"

	"github.com/gorilla/mux"
)

type changeOwnerRequest struct {
	GroupId    string `json:"group_id"`
	NewOwnerId string `json:"new_owner_id"`
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())

	if err := parseMultipart(r); err != nil {
		writeError(w, err)
		return
	}
	img, err := formImage(r, "group_image")
	if err != nil {
		writeError(w, err)
		return
	}

	group, err := h.Groups.Create(r.Context(), who, groups.CreateRequest{
		Name:      r.FormValue("group_name"),
		MemberIds: r.FormValue("member_ids"),
		Image:     img,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *Handler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())

	group, err := h.Groups.Leave(r.Context(), who, mux.Vars(r)["groupId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *Handler) ChangeOwner(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())

	var req changeOwnerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	group, err := h.Groups.ChangeOwner(r.Context(), who, req.GroupId, req.NewOwnerId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *Handler) MemberGroups(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())

	list, err := h.Groups.MemberGroups(r.Context(), who)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) OwnedGroups(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())

	list, err := h.Groups.OwnedGroups(r.Context(), who)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GroupMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Groups.Members(r.Context(), mux.Vars(r)["groupId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}
