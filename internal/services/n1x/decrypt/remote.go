package decrypt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/louisbranch/n1x/internal/services/n1x/f010"
)

// ValidatePath is the server's key validation route.
const ValidatePath = "/api/f010/validate"

// ValidateRequest is the validation endpoint body.
type ValidateRequest struct {
	RoomID string `json:"room_id,omitempty"`
	Key    string `json:"key"`
}

// Remote validates keys against a server's validation endpoint.
type Remote struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Validate posts key to the server. Transport failures count as invalid.
func (r Remote) Validate(ctx context.Context, roomID, key string) f010.Result {
	res, err := r.validate(ctx, roomID, key)
	if err != nil {
		log.Printf("decrypt: remote validate failed: %v", err)
		return f010.Result{}
	}
	return res
}

func (r Remote) validate(ctx context.Context, roomID, key string) (f010.Result, error) {
	base := strings.TrimRight(strings.TrimSpace(r.BaseURL), "/")
	if base == "" {
		return f010.Result{}, fmt.Errorf("base url is required")
	}
	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	body, err := json.Marshal(ValidateRequest{RoomID: roomID, Key: key})
	if err != nil {
		return f010.Result{}, fmt.Errorf("marshal validate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+ValidatePath, bytes.NewReader(body))
	if err != nil {
		return f010.Result{}, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return f010.Result{}, fmt.Errorf("validate request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return f010.Result{}, fmt.Errorf("validate status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out f010.Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return f010.Result{}, fmt.Errorf("decode validate response: %w", err)
	}
	return out, nil
}
