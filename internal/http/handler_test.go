package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkpoint-gate/internal/actuator"
	"checkpoint-gate/internal/config"
	"checkpoint-gate/internal/domain/gate"
	"checkpoint-gate/internal/service"
	"checkpoint-gate/internal/stream"
)

type fakeGateService struct {
	mu        sync.Mutex
	events    []gate.ActuationEvent
	openErr   error
	operators []string
	lastLimit int
}

func (f *fakeGateService) FindEvents(_ context.Context, vehicle *string, _, _ *string, limit, _ int) ([]gate.ActuationEvent, error) {
	if vehicle != nil && *vehicle == "bad" {
		return nil, service.ErrInvalidInput
	}
	f.lastLimit = limit
	return f.events, nil
}

func (f *fakeGateService) FindRecognitions(_ context.Context, _ *string, _, _ int) ([]gate.Recognition, error) {
	return nil, errors.New("database is locked")
}

func (f *fakeGateService) GateStatus() (service.GateStatus, error) {
	return service.GateStatus{State: "closed"}, nil
}

func (f *fakeGateService) OpenManually(operator string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.operators = append(f.operators, operator)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Checkpoint: config.CheckpointConfig{Name: "north"},
		HTTP:       config.HTTPConfig{FallbackURL: "/vehicles/new", AllowedOrigins: []string{"*"}},
		Auth:       config.AuthConfig{JWTSecret: "s3cret", Issuer: "checkpoint-gate"},
	}
}

func newTestRouter(t *testing.T, svc GateService, hub *stream.Hub) (*gin.Engine, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	h := NewHandler(svc, hub, cfg, zerolog.Nop())
	return NewRouter(h, prometheus.NewRegistry(), zerolog.Nop()), cfg
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListEvents(t *testing.T) {
	svc := &fakeGateService{events: []gate.ActuationEvent{
		{Action: gate.ActionGateOpened, Timestamp: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
	}}
	r, _ := newTestRouter(t, svc, stream.NewHub())

	w := do(r, http.MethodGet, "/api/v1/events?limit=20", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []gate.ActuationEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, gate.ActionGateOpened, body.Data[0].Action)
	assert.Equal(t, 20, svc.lastLimit)

	w = do(r, http.MethodGet, "/api/v1/events?vehicle_id=bad", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInternalErrorsAreHidden(t *testing.T) {
	r, _ := newTestRouter(t, &fakeGateService{}, stream.NewHub())

	w := do(r, http.MethodGet, "/api/v1/recognitions", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}

func TestOpenGateRequiresToken(t *testing.T) {
	svc := &fakeGateService{}
	r, cfg := newTestRouter(t, svc, stream.NewHub())

	w := do(r, http.MethodPost, "/api/v1/gate/open", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := cfg.Auth
	other.JWTSecret = "wrong"
	forged, err := IssueToken(other, "mallory", time.Minute)
	require.NoError(t, err)
	w = do(r, http.MethodPost, "/api/v1/gate/open", forged)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := IssueToken(cfg.Auth, "alice", -time.Minute)
	require.NoError(t, err)
	w = do(r, http.MethodPost, "/api/v1/gate/open", expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token expired")

	token, err := IssueToken(cfg.Auth, "alice", time.Minute)
	require.NoError(t, err)
	w = do(r, http.MethodPost, "/api/v1/gate/open", token)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"alice"}, svc.operators)
}

func TestOpenGateBusy(t *testing.T) {
	svc := &fakeGateService{openErr: actuator.ErrBusy}
	r, cfg := newTestRouter(t, svc, stream.NewHub())

	token, err := IssueToken(cfg.Auth, "alice", time.Minute)
	require.NoError(t, err)
	w := do(r, http.MethodPost, "/api/v1/gate/open", token)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthWithoutSecretRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.Auth.JWTSecret = ""
	h := NewHandler(&fakeGateService{}, stream.NewHub(), cfg, zerolog.Nop())
	r := NewRouter(h, prometheus.NewRegistry(), zerolog.Nop())

	w := do(r, http.MethodPost, "/api/v1/gate/open", "anything")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	_, err := IssueToken(cfg.Auth, "alice", time.Minute)
	assert.Error(t, err)
}

func TestGateStatusAndHealth(t *testing.T) {
	r, _ := newTestRouter(t, &fakeGateService{}, stream.NewHub())

	w := do(r, http.MethodGet, "/api/v1/gate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"state":"closed","pending":0}}`, w.Body.String())

	w = do(r, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"checkpoint":"north"`)
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeGateService{}, stream.NewHub())
	w := do(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVideoFeedRedirectsWhenSourceFailed(t *testing.T) {
	hub := stream.NewHub()
	hub.SetErr(errors.New("camera offline"))
	r, _ := newTestRouter(t, &fakeGateService{}, hub)

	w := do(r, http.MethodGet, "/video_feed", "")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/vehicles/new", w.Header().Get("Location"))
}

func TestVideoFeedStreamsFrames(t *testing.T) {
	hub := stream.NewHub()
	hub.Publish([]byte("JPEG"))
	r, _ := newTestRouter(t, &fakeGateService{}, hub)

	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/video_feed", nil))
	}()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, time.Millisecond)
	hub.Close()
	<-done

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, stream.ContentType, w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "--frame\r\nContent-Type: image/jpeg\r\n\r\nJPEG\r\n\r\n"))
}
