package http

import (
	"net/http"
	"time"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Member    memberResponse `json:"user"`
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err)
		return
	}

	m, token, expires, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(ctx, w, http.StatusOK, loginResponse{Member: mapMember(m), Token: token, ExpiresAt: expires})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err)
		return
	}

	m, err := h.auth.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    mapMember(m),
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := h.auth.Me(ctx, actor(r).ID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, mapMember(m))
}
