package authmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func handler(sawAdmin *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sawAdmin != nil {
			*sawAdmin = IsAdmin(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearer(t *testing.T) {
	t.Parallel()

	mw := Bearer([]string{"guard-token"}, []string{"admin-token"})

	tests := []struct {
		name      string
		auth      string
		wantCode  int
		wantAdmin bool
	}{
		{"guard token", "Bearer guard-token", http.StatusOK, false},
		{"admin token", "Bearer admin-token", http.StatusOK, true},
		{"wrong token", "Bearer nope", http.StatusUnauthorized, false},
		{"missing header", "", http.StatusUnauthorized, false},
		{"malformed header", "Basic guard-token", http.StatusUnauthorized, false},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var sawAdmin bool
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			mw(handler(&sawAdmin)).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && sawAdmin != tt.wantAdmin {
				t.Fatalf("IsAdmin = %v, want %v", sawAdmin, tt.wantAdmin)
			}
		})
	}
}

func TestBearerNoTokensConfigured(t *testing.T) {
	t.Parallel()

	mw := Bearer(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mw(handler(nil)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with auth disabled", rec.Code)
	}
}

func TestIsAdminDefault(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if IsAdmin(req.Context()) {
		t.Fatal("plain context reported admin")
	}
}
