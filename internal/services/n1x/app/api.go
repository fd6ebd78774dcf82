package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/louisbranch/n1x/internal/services/n1x/decrypt"
	"github.com/louisbranch/n1x/internal/services/n1x/f010"
)

const maxAPIBodyBytes = 4 * 1024

type decryptRequest struct {
	RoomID string `json:"room_id,omitempty"`
	Input  string `json:"input"`
}

func validateHandler(validator f010.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req decrypt.ValidateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAPIBodyBytes)).Decode(&req); err != nil {
			writeJSON(w, f010.Result{})
			return
		}
		res := validator.Validate(r.Context(), req.RoomID, req.Key)
		if res.Valid && !res.Verified {
			log.Printf("n1x: f010 key accepted by shape only room=%q", req.RoomID)
		}
		writeJSON(w, res)
	}
}

func decryptHandler(surface decrypt.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req decryptRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAPIBodyBytes)).Decode(&req); err != nil {
			writeJSON(w, decrypt.Result{})
			return
		}
		writeJSON(w, surface.Decrypt(r.Context(), req.RoomID, req.Input))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("n1x: write response: %v", err)
	}
}
