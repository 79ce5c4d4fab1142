package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lecturely/backend/internal/auth"
	"github.com/lecturely/backend/internal/models"
)

func newRouter(jwtService *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/ping", JWT(jwtService), RequireRole(models.RoleAdmin, models.RoleStaff), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func TestAdminGate(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 1)
	token := func(role string) string {
		tok, err := jwtService.Generate(uuid.New(), role+"@example.com", role)
		if err != nil {
			t.Fatal(err)
		}
		return "Bearer " + tok
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"user role", token("user"), http.StatusForbidden},
		{"staff role", token("staff"), http.StatusOK},
		{"admin role", token("admin"), http.StatusOK},
	}
	r := newRouter(jwtService)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("http://localhost:3000"))
	r.POST("/admin/tasks/retry", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/admin/tasks/retry", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow-origin = %q", got)
	}
}
