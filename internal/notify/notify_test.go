package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veristay/internal/override/models"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
)

type staticDirectory struct {
	email string
	err   error
}

func (d staticDirectory) EmailFor(context.Context, id.UserID) (string, error) {
	return d.email, d.err
}

func decidedRequest(status models.RequestStatus) *models.OverrideRequest {
	return &models.OverrideRequest{
		ID:          id.NewOverrideID(),
		Type:        models.TypeDocumentReview,
		Status:      status,
		RequesterID: id.NewUserID(),
		AdminNotes:  "reviewed the scan by hand",
	}
}

func TestEmailNotifier(t *testing.T) {
	t.Run("composes and delivers for a decided request", func(t *testing.T) {
		n := NewEmailNotifier(staticDirectory{email: "dana.okafor@example.org"}, slog.Default())
		err := n.NotifyDecision(context.Background(), decidedRequest(models.StatusApproved))
		assert.NoError(t, err)
	})

	t.Run("directory failure surfaces to the caller", func(t *testing.T) {
		n := NewEmailNotifier(staticDirectory{err: fmt.Errorf("directory down")}, slog.Default())
		err := n.NotifyDecision(context.Background(), decidedRequest(models.StatusDenied))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resolve requester email")
	})
}

func TestHTTPDirectory(t *testing.T) {
	userID := id.NewUserID()

	t.Run("resolves the address with the bearer token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer directory-token", r.Header.Get("Authorization"))
			assert.Equal(t, "/v1/users/"+userID.String()+"/email", r.URL.Path)
			fmt.Fprint(w, `{"email":"dana.okafor@example.org"}`)
		}))
		defer srv.Close()

		email, err := NewHTTPDirectory(srv.URL, "directory-token").EmailFor(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, "dana.okafor@example.org", email)
	})

	t.Run("unknown user is not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := NewHTTPDirectory(srv.URL, "directory-token").EmailFor(context.Background(), userID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("record without an email is not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"email":""}`)
		}))
		defer srv.Close()

		_, err := NewHTTPDirectory(srv.URL, "directory-token").EmailFor(context.Background(), userID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("upstream error is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewHTTPDirectory(srv.URL, "directory-token").EmailFor(context.Background(), userID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}
