package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/preferences"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/types"
)

type PreferencesService interface {
	Get(ctx context.Context) preferences.Outcome
	Update(ctx context.Context, patch preferences.Patch) (preferences.Outcome, error)
}

func preferenceNotices(notices []preferences.Notice) []types.Notice {
	if len(notices) == 0 {
		return nil
	}
	out := make([]types.Notice, 0, len(notices))
	for _, n := range notices {
		out = append(out, types.Notice(n))
	}
	return out
}

func PreferencesGet(svc PreferencesService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := svc.Get(r.Context())
		responses.WriteSuccessWithNotices(w, http.StatusOK, out.Preferences, preferenceNotices(out.Notices))
	}
}

// PreferencesUpdate applies a partial update. A null extra value removes that key.
func PreferencesUpdate(svc PreferencesService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch preferences.Patch
		if err := validators.DecodeJSONBody(r, &patch); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.Update(r.Context(), patch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessWithNotices(w, http.StatusOK, out.Preferences, preferenceNotices(out.Notices))
	}
}
