package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/gatepass-backend/api/middleware"
	pkgAuth "github.com/angelmondragon/gatepass-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
)

func callerClaims(r *http.Request) (*pkgAuth.AccessTokenClaims, error) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil || claims.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return claims, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).
			WithDetails(map[string]any{"field": name})
	}
	return id, nil
}
