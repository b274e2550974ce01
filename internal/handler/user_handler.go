/*
Package handler provides HTTP handler functions for user profile management.
*/
package handler

import (
	"net/http"

	"tempchat/internal/pkg/auth/jwt"
	"tempchat/internal/pkg/errs"
	"tempchat/internal/pkg/req"
	"tempchat/internal/pkg/resp"
)

// UpdateProfileInput carries the fields to change. Absent fields stay as they are.
type UpdateProfileInput struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// HandleGetUserProfile returns the caller's display profile.
func HandleGetUserProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.Error(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		profile, customErr := deps.Service.Profile(r.Context(), identity.ID)
		if customErr != nil {
			resp.Error(w, r, customErr)
			return
		}

		resp.Success(w, r, map[string]any{"user": profile})
	}
}

// HandleUpdateUserProfile changes the caller's name and/or color. The change is broadcast
// to the room like a WebSocket update_profile.
func HandleUpdateUserProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.Error(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input UpdateProfileInput
		if err := req.BindJSON(r, &input); err != nil {
			resp.Error(w, r, err)
			return
		}

		updated, customErr := deps.Service.UpdateProfile(r.Context(), identity.ID, input.Name, input.Color)
		if customErr != nil {
			resp.Error(w, r, customErr)
			return
		}

		resp.Success(w, r, map[string]any{"user": updated})
	}
}
