package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_CountsByRouteAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Middleware())
	r.GET("/api/menu/options/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/menu/options/:id", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404"))

	for _, path := range []string{"/api/menu/options/a", "/api/menu/options/b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s -> %d", path, w.Code)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/menu/options/:id", "200")); got != baseOK+2 {
		t.Fatalf("route counter = %v, want %v", got, baseOK+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404")); got != base404+1 {
		t.Fatalf("fallback counter = %v, want %v", got, base404+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v after requests finished", got)
	}
}

func TestCollectorsRegistered(t *testing.T) {
	InboundMessages.WithLabelValues("responded").Inc()
	if n := testutil.CollectAndCount(InboundMessages); n < 1 {
		t.Fatalf("inbound collector exported %d series", n)
	}
}
