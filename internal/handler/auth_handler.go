/*
Package handler provides HTTP handler functions for guest identities.
*/
package handler

import (
	"net/http"

	"tempchat/internal/pkg/auth/jwt"
	"tempchat/internal/pkg/errs"
	"tempchat/internal/pkg/logx"
	"tempchat/internal/pkg/randx"
	"tempchat/internal/pkg/req"
	"tempchat/internal/pkg/resp"
)

// GuestLoginInput optionally picks the display name of the new identity.
type GuestLoginInput struct {
	Name *string `json:"name,omitempty"`
}

// HandleGuestLogin mints a fresh identity and returns a token for it together with the
// generated profile.
func HandleGuestLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input GuestLoginInput
		if err := req.BindJSON(r, &input); err != nil {
			resp.Error(w, r, err)
			return
		}

		id := randx.GuestID()

		profile, customErr := deps.Service.Profile(r.Context(), id)
		if customErr != nil {
			resp.Error(w, r, customErr)
			return
		}

		if input.Name != nil {
			profile, customErr = deps.Service.UpdateProfile(r.Context(), id, input.Name, nil)
			if customErr != nil {
				resp.Error(w, r, customErr)
				return
			}
		}

		token, err := jwt.GenerateToken(&jwt.Payload{ID: id}, deps.Config.JWTSecret, jwt.IdentityExpiration)
		if err != nil {
			logx.Error(err, "guest_login: token generation failed")
			resp.Error(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.Success(w, r, map[string]any{
			"token": token,
			"user":  profile,
		})
	}
}
