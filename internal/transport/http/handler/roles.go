package handler

import (
	"net/http"

	"github.com/go-shop-api/internal/application/role"
)

type RoleHandler struct {
	svc role.Service
}

func NewRoleHandler(svc role.Service) *RoleHandler { return &RoleHandler{svc: svc} }

func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": h.svc.List(r.Context())})
}
