package devotp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type codeResponse struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

// Handler serves GET /{challengeID} from store. Mount it under /v1/dev/otp only when dev OTP mode is on.
func Handler(store Store) http.Handler {
	r := chi.NewRouter()
	r.Get("/{challengeID}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "challengeID")
		code, ok := store.Get(req.Context(), id)
		if !ok {
			render.Status(req, http.StatusNotFound)
			render.JSON(w, req, map[string]string{"error": "otp not found or expired"})
			return
		}
		render.JSON(w, req, codeResponse{ChallengeID: id, Code: code})
	})
	return r
}
