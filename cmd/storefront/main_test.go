package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rickgao/storefront/internal/api"
	"github.com/rickgao/storefront/internal/catalog"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not signed in", fmt.Errorf("purchase: %w", catalog.ErrNotSignedIn), http.StatusUnauthorized},
		{"superseded", catalog.ErrSuperseded, http.StatusConflict},
		{"not found", fmt.Errorf("purchase: %w", api.ErrNotFound), http.StatusNotFound},
		{"validation", fmt.Errorf("collect token: %w", api.ErrInvalidInput), http.StatusBadRequest},
		{"remote", &api.APIError{StatusCode: 500, Message: "Internal Server Error"}, http.StatusBadGateway},
		{"transport", errors.New("connection reset"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAPIHost(t *testing.T) {
	if got := apiHost("https://api.example.com/graphql"); got != "api.example.com" {
		t.Errorf("apiHost() = %q", got)
	}
	if got := apiHost("://bad"); got != "" {
		t.Errorf("apiHost(bad) = %q, want empty", got)
	}
}
