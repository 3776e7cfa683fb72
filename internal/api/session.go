package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"bi-demo/internal/domain"
	"bi-demo/internal/service/security"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) loginPage(w http.ResponseWriter, r *http.Request) {
	if u, ok := domain.UserFromContext(r.Context()); ok {
		h.writeJSON(w, http.StatusOK, map[string]any{"message": "logged in", "username": u.Username})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"message": "POST username and password to log in"})
}

// login accepts a JSON body or a form and sets the session cookie.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			h.writeError(w, r, domain.ErrValidation("invalid request body: %v", err))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.writeError(w, r, domain.ErrValidation("invalid form: %v", err))
			return
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		var unauth *domain.UnauthenticatedError
		if !errors.As(err, &unauth) {
			h.writeError(w, r, err)
			return
		}
		h.logger.Info("login failed", "username", req.Username)
		h.writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid login. Please try again."})
		return
	}
	token, err := h.auth.Tokens().Issue(u.ID, u.Username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.SetCookie(w, h.auth.SessionCookie(token))
	h.logger.Info("user logged in", "username", u.Username)
	h.writeJSON(w, http.StatusOK, map[string]any{"access_token": token, "username": u.Username})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.auth.ClearCookie())
	http.Redirect(w, r, "/login/", http.StatusFound)
}

type meResponse struct {
	ID          int64       `json:"id"`
	Username    string      `json:"username"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	Email       string      `json:"email"`
	Roles       []string    `json:"roles"`
	Permissions [][2]string `json:"permissions"`
	IsAdmin     bool        `json:"is_admin"`
}

// me describes the calling user.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	u, err := security.CurrentUser(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := meResponse{
		ID:          u.ID,
		Username:    u.Username,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		Roles:       []string{},
		Permissions: [][2]string{},
		IsAdmin:     security.IsAdmin(u),
	}
	for _, role := range u.Roles {
		resp.Roles = append(resp.Roles, role.Name)
	}
	if perms := security.UserPermissions(u); perms != nil {
		resp.Permissions = perms
	}
	h.writeJSON(w, http.StatusOK, resp)
}
