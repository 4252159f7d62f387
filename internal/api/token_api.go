package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-expo-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/expo"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

type TokenAPI struct {
	Store  dispatch.TokenStore
	Logger *slog.Logger
}

func NewTokenAPI(store dispatch.TokenStore, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:  store,
		Logger: logger.With("component", "TokenAPI"),
	}
}

type ExpoTokenRequest struct {
	Token string `json:"token"`
}

func (api *TokenAPI) RegisterExpo(w http.ResponseWriter, r *http.Request) {
	userURN, req, ok := api.decode(w, r)
	if !ok {
		return
	}

	if !expo.IsPushToken(req.Token) {
		api.Logger.Warn("RegisterExpo: Validation failed", "reason", "not an expo push token")
		response.WriteJSONError(w, http.StatusBadRequest, "invalid expo push token")
		return
	}

	if err := api.Store.RegisterToken(r.Context(), userURN, req.Token); err != nil {
		api.Logger.Error("failed to register expo token", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("RegisterExpo: Token registered", "user", userURN.String())

	w.WriteHeader(http.StatusNoContent)
}

func (api *TokenAPI) UnregisterExpo(w http.ResponseWriter, r *http.Request) {
	userURN, req, ok := api.decode(w, r)
	if !ok {
		return
	}

	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := api.Store.UnregisterToken(r.Context(), userURN, req.Token); err != nil {
		// Log but don't fail hard; idempotency is preferred for unregister
		api.Logger.Warn("failed to unregister expo token", "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// decode resolves the caller and body, writing the error response itself
// when it returns false.
func (api *TokenAPI) decode(w http.ResponseWriter, r *http.Request) (userURN urn.URN, req ExpoTokenRequest, ok bool) {
	userID, ok := middleware.GetUserHandleFromContext(r.Context())
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return userURN, req, false
	}
	parsed, err := urn.Parse(userID)
	if err != nil {
		api.Logger.Warn("caller handle is not a valid URN", "user", userID, "err", err)
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return userURN, req, false
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return userURN, req, false
	}
	return parsed, req, true
}
