package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hrms/internal/auth"
	"hrms/internal/authz"
	"hrms/internal/config"
	"hrms/internal/middleware"
	"hrms/internal/permcache"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	. "github.com/onsi/gomega"
)

type noPermissions struct{}

func (noPermissions) ResolveUserPermissionCodes(context.Context, uuid.UUID) ([]string, error) {
	return nil, nil
}

type hubFixture struct {
	hub    *Hub
	tokens *auth.TokenService
	server *httptest.Server
}

func newHubFixture(t *testing.T) *hubFixture {
	gin.SetMode(gin.TestMode)
	tokens := auth.NewTokenService(config.JWTConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     time.Hour,
		RefreshTTL:    time.Hour,
	})
	engine := authz.NewEngine(permcache.NewMemoryCache(), noPermissions{}, time.Minute)

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.Use(middleware.ErrorHandler(false))
	r.GET("/ws", ServeWs(hub, tokens, engine))
	server := httptest.NewServer(r)

	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return &hubFixture{hub: hub, tokens: tokens, server: server}
}

func (f *hubFixture) token(t *testing.T, claims auth.Claims) string {
	pair, err := f.tokens.Issue(claims)
	Expect(err).NotTo(HaveOccurred())
	return pair.AccessToken
}

func (f *hubFixture) dial(t *testing.T, token string) *gorilla.Conn {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	Expect(err).NotTo(HaveOccurred())
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServeWsRejectsUnauthorizedCallers(t *testing.T) {
	RegisterTestingT(t)
	f := newHubFixture(t)

	res, err := http.Get(f.server.URL + "/ws")
	Expect(err).NotTo(HaveOccurred())
	Expect(res.StatusCode).To(Equal(http.StatusUnauthorized))
	_ = res.Body.Close()

	company := uuid.New()
	employee := f.token(t, auth.Claims{UserID: uuid.New(), Role: "employee", CompanyID: &company})
	res, err = http.Get(f.server.URL + "/ws?token=" + employee)
	Expect(err).NotTo(HaveOccurred())
	Expect(res.StatusCode).To(Equal(http.StatusForbidden))
	_ = res.Body.Close()
}

func TestPublishReachesOnlyTheCompany(t *testing.T) {
	RegisterTestingT(t)
	f := newHubFixture(t)
	mine, theirs := uuid.New(), uuid.New()

	own := f.dial(t, f.token(t, auth.Claims{UserID: uuid.New(), Role: "finance", CompanyID: &mine}))
	other := f.dial(t, f.token(t, auth.Claims{UserID: uuid.New(), Role: "finance", CompanyID: &theirs}))
	admin := f.dial(t, f.token(t, auth.Claims{UserID: uuid.New(), Role: "superadmin", IsSuperAdmin: true}))
	Eventually(f.hub.ClientCount).Should(Equal(3))

	f.hub.Publish(mine, "reconciliation.completed", map[string]string{"id": "r-1"})

	for _, conn := range []*gorilla.Conn{own, admin} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		Expect(err).NotTo(HaveOccurred())

		var event Event
		Expect(json.Unmarshal(raw, &event)).To(Succeed())
		Expect(event.Type).To(Equal("reconciliation.completed"))
		Expect(event.CompanyID).To(Equal(mine))
	}

	_ = other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := other.ReadMessage()
	Expect(err).To(HaveOccurred())
}
