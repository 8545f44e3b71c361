package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
)

// HTTPDirectory resolves email addresses from the auth provider's user
// directory over HTTP JSON.
type HTTPDirectory struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPDirectory(baseURL, token string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type emailResponse struct {
	Email string `json:"email"`
}

func (d *HTTPDirectory) EmailFor(ctx context.Context, userID id.UserID) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/v1/users/"+userID.String()+"/email", nil)
	if err != nil {
		return "", fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.token)

	resp, err := d.http.Do(req)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "user directory unreachable")
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", dErrors.New(dErrors.CodeNotFound, "user not found in directory")
	case resp.StatusCode >= 300:
		return "", dErrors.New(dErrors.CodeUnavailable, "user directory lookup failed").
			WithDetail("status", resp.StatusCode)
	}

	var body emailResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode directory response: %w", err)
	}
	if body.Email == "" {
		return "", dErrors.New(dErrors.CodeNotFound, "user has no email on record")
	}
	return body.Email, nil
}
