package httpapi

import (
	"errors"
	"net/http"
	"time"

	"globalbangla.org/internal/audit"
	"globalbangla.org/internal/auth"
	"globalbangla.org/internal/obs"
)

type signupRequest struct {
	Name            string `json:"name" validate:"required,max=120"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	School          string `json:"school" validate:"max=200"`
	AffiliateSchool string `json:"affiliateSchool" validate:"max=200"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type createAdminRequest struct {
	Name       string `json:"name" validate:"required,max=120"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	InviteCode string `json:"inviteCode" validate:"required"`
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

type sessionResponse struct {
	Message   string     `json:"message"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *auth.User `json:"user"`
}

func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !a.bind(w, r, &req) {
		return
	}
	user, err := a.svc.Accounts.Signup(r.Context(), auth.SignupInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		School:          req.School,
		AffiliateSchool: req.AffiliateSchool,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.startSession(w, r, user, http.StatusCreated, "Signup successful", "auth.signup")
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.bind(w, r, &req) {
		return
	}
	user, err := a.svc.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"email": auth.NormalizeEmail(req.Email)})
		}
		handleError(w, r, err)
		return
	}
	a.startSession(w, r, user, http.StatusOK, "Login successful", "auth.login")
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request, user *auth.User, code int, msg, event string) {
	cred, err := a.mechanism.Issue(r.Context(), user.Principal())
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.setSessionCookie(w, cred)
	ctx := auth.ContextWithPrincipal(r.Context(), user.Principal())
	_ = audit.LogEvent(ctx, event, map[string]any{"expires_at": cred.ExpiresAt.Format(time.RFC3339)})
	writeJSON(w, code, sessionResponse{
		Message:   msg,
		Token:     cred.Token,
		ExpiresAt: cred.ExpiresAt,
		User:      user,
	})
}

// logout clears the cookie whether or not the credential is still valid.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if credential := credentialFromRequest(r); credential != "" {
		if p, err := a.mechanism.Verify(r.Context(), credential); err == nil {
			r = r.WithContext(auth.ContextWithPrincipal(r.Context(), p))
		}
		if err := a.mechanism.Revoke(r.Context(), credential); err != nil {
			obs.Warn("logout_revoke_failed", map[string]any{
				"request_id": RequestIDFromContext(r.Context()),
				"error":      err,
			})
		}
	}
	a.clearSessionCookie(w)
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeMessage(w, http.StatusOK, "Logged out")
}

func (a *API) createAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if !a.bind(w, r, &req) {
		return
	}
	user, err := a.svc.Accounts.CreateAdmin(r.Context(), auth.AdminInput{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		InviteCode: req.InviteCode,
	})
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.admin.create_rejected", map[string]any{
			"email": auth.NormalizeEmail(req.Email),
			"error": err,
		})
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.admin.created", map[string]any{"admin_id": user.ID})
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Admin account created. You can login now.",
		"adminId": user.ID,
	})
}

func (a *API) requestStudentReset(w http.ResponseWriter, r *http.Request) {
	a.requestReset(w, r, auth.RoleStudent, "Student not found.", "Password reset link sent.")
}

func (a *API) requestAdminReset(w http.ResponseWriter, r *http.Request) {
	a.requestReset(w, r, auth.RoleAdmin, "Admin account not found.", "Admin reset link sent.")
}

func (a *API) requestReset(w http.ResponseWriter, r *http.Request, role auth.Role, missing, sent string) {
	var req resetRequest
	if !a.bind(w, r, &req) {
		return
	}
	err := a.svc.Accounts.RequestPasswordReset(r.Context(), req.Email, role)
	if errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, r, http.StatusNotFound, missing)
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.reset.requested", map[string]any{
		"email": auth.NormalizeEmail(req.Email),
		"role":  role.String(),
	})
	writeMessage(w, http.StatusOK, sent)
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !a.bind(w, r, &req) {
		return
	}
	if err := a.svc.Accounts.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.reset.completed", nil)
	writeMessage(w, http.StatusOK, "Password updated successfully.")
}
