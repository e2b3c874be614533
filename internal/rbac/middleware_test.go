package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"dialtrack/internal/auth"

	"github.com/gin-gonic/gin"
)

func doWithRole(t *testing.T, role string, mw gin.HandlerFunc) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if role != "" {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "agent-1", role))
		}
		c.Next()
	})
	r.Use(mw)
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole(t *testing.T) {
	mw := RequireAnyRole(RoleSupervisor)

	if code := doWithRole(t, RoleSupervisor, mw); code != http.StatusOK {
		t.Fatalf("supervisor = %d, want 200", code)
	}
	if code := doWithRole(t, RoleAdmin, mw); code != http.StatusOK {
		t.Fatalf("admin bypass = %d, want 200", code)
	}
	if code := doWithRole(t, RoleAgent, mw); code != http.StatusForbidden {
		t.Fatalf("agent = %d, want 403", code)
	}
	if code := doWithRole(t, "", mw); code != http.StatusUnauthorized {
		t.Fatalf("missing role = %d, want 401", code)
	}
}
