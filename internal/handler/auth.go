package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"orderdesk/internal/model"
	"orderdesk/internal/service"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type Authenticator interface {
	Authenticate(login, password string) (*model.Operator, error)
	IssueToken(op *model.Operator) (string, error)
}

func LoginHandler(authSvc Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		op, err := authSvc.Authenticate(req.Login, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidCredentials):
				http.Error(w, "invalid login or password", http.StatusUnauthorized)
			default:
				slog.Error("authenticate failed", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		token, err := authSvc.IssueToken(op)
		if err != nil {
			slog.Error("token generation failed", "error", err)
			http.Error(w, "token generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Authorization", "Bearer "+token)
		writeJSON(w, http.StatusOK, map[string]string{"token": token, "operator": op.Login})
	}
}
