package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"courier/internal/domain"
	"courier/internal/handler"
	"courier/internal/service"
	"courier/internal/tests"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(drivers *tests.MockDriverRepository) (*gin.Engine, *service.AuthService) {
	locations := tests.NewMockLocationRepository()
	deliveries := tests.NewMockDeliveryRepository()
	index := tests.NewMockPositionIndex()
	auth := service.NewAuthService(nil, tests.NewMockUserRepository(), drivers, "router-secret", time.Hour)
	history := service.NewHistoryService(locations)
	logger, _ := test.NewNullLogger()

	router := NewRouter(RouterDeps{
		LocationHandler: handler.NewLocationHandler(
			service.NewTrackingService(drivers, locations, deliveries, index, nil, nil, service.DefaultTrackingPolicy()),
			history,
			service.NewProximityService(index, nil, drivers),
			service.NewRouteService(),
		),
		DriverHandler:   handler.NewDriverHandler(service.NewDriverService(index, nil, drivers)),
		DeliveryHandler: handler.NewDeliveryHandler(service.NewDeliveryService(deliveries, drivers), history),
		AuthHandler:     handler.NewAuthHandler(auth),
		Tokens:          auth,
		Logger:          logger,
	})
	return router, auth
}

func TestNewRouter_Routes(t *testing.T) {
	t.Parallel()

	drivers := tests.NewMockDriverRepository()
	drivers.AddDriver(&domain.Driver{ID: "driver-1", Status: domain.DriverStatusOffline})
	router, auth := newTestRouter(drivers)

	driverToken, _ := auth.IssueToken(&domain.User{ID: "driver-1", Role: domain.RoleDriver})
	adminToken, _ := auth.IssueToken(&domain.User{ID: "admin-1", Role: domain.RoleAdmin})

	testCases := []struct {
		name       string
		method     string
		path       string
		token      string
		body       string
		wantStatus int
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "unknown route", method: http.MethodGet, path: "/v1/rides", token: driverToken, wantStatus: http.StatusNotFound},
		{name: "nearby needs a token", method: http.MethodGet, path: "/v1/location/nearby?longitude=2.35&latitude=48.85", wantStatus: http.StatusUnauthorized},
		{name: "nearby", method: http.MethodGet, path: "/v1/location/nearby?longitude=2.35&latitude=48.85", token: adminToken, wantStatus: http.StatusOK},
		{name: "driver update", method: http.MethodPost, path: "/v1/location/update", token: driverToken, body: `{"coordinates":[2.35,48.85]}`, wantStatus: http.StatusOK},
		{name: "admin cannot update", method: http.MethodPost, path: "/v1/location/update", token: adminToken, body: `{"coordinates":[2.35,48.85]}`, wantStatus: http.StatusForbidden},
		{name: "driver cannot create delivery", method: http.MethodPost, path: "/v1/deliveries", token: driverToken, body: `{}`, wantStatus: http.StatusForbidden},
		{name: "login is public", method: http.MethodPost, path: "/v1/auth/login", body: `{"email":"nobody@example.com","password":"x"}`, wantStatus: http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestKeyCollection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	testCases := []struct {
		cmd  redis.Cmder
		want string
	}{
		{cmd: redis.NewStringCmd(ctx, "get", "cache:driver:42"), want: "cache:driver"},
		{cmd: redis.NewIntCmd(ctx, "zrem", "drivers:available:positions", "42"), want: "drivers:available"},
		{cmd: redis.NewStatusCmd(ctx, "ping"), want: "redis"},
		{cmd: redis.NewStringCmd(ctx, "get", "plain"), want: "plain"},
	}

	for _, tc := range testCases {
		if got := keyCollection(tc.cmd); got != tc.want {
			t.Errorf("%v: expected %q, got %q", tc.cmd.Args(), tc.want, got)
		}
	}
}
