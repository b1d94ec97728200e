package sampler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Zyptonix/Traffic-Rewards/internal/location"
)

func testAuth(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	}
}

func newHandlerTest(t *testing.T) (*Manager, *fiber.App) {
	t.Helper()
	fx := newPipelineTest(t, freeFlowBody, false)

	sched := NewTickerScheduler(time.Hour)
	t.Cleanup(sched.Close)

	mgr := &Manager{
		Provider:          location.NewPushProvider(),
		Scheduler:         sched,
		Pipeline:          fx.pipeline,
		BackgroundEnabled: true,
	}
	t.Cleanup(func() { mgr.StopAll(context.Background()) })

	app := fiber.New()
	RegisterRoutes(app.Group("/traffic"), mgr, testAuth("user-1"))
	return mgr, app
}

func decodeState(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return body.State
}

func TestTrafficHandlersPushFix(t *testing.T) {
	mgr, app := newHandlerTest(t)

	fix := location.Sample{Lat: 1, Lng: 2, HeadingDeg: 90, RecordedAt: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
	body, _ := json.Marshal(fix)
	req := httptest.NewRequest(http.MethodPost, "/traffic/fixes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if state := decodeState(t, resp); state != string(StateUnregistered) {
		t.Fatalf("unexpected state %q", state)
	}

	stored, err := mgr.Provider.CurrentFix(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("current fix: %v", err)
	}
	if stored.Lat != 1 || stored.Lng != 2 {
		t.Fatalf("fix not recorded: %+v", stored)
	}
}

func TestTrafficHandlersFixValidation(t *testing.T) {
	_, app := newHandlerTest(t)

	body, _ := json.Marshal(location.Sample{Lat: 200, Lng: 0, RecordedAt: time.Now()})
	req := httptest.NewRequest(http.MethodPost, "/traffic/fixes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range lat, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodPost, "/traffic/fixes", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", resp.StatusCode)
	}
}

func TestTrafficHandlersFixDefaultTimestamp(t *testing.T) {
	mgr, app := newHandlerTest(t)

	req := httptest.NewRequest(http.MethodPost, "/traffic/fixes", bytes.NewReader([]byte(`{"lat":1,"lng":2}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	stored, err := mgr.Provider.CurrentFix(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("current fix: %v", err)
	}
	if stored.RecordedAt.IsZero() {
		t.Fatalf("expected server-side timestamp for fix without one")
	}
}

func TestTrafficHandlersFocusLifecycle(t *testing.T) {
	_, app := newHandlerTest(t)

	req := httptest.NewRequest(http.MethodPost, "/traffic/focus", bytes.NewReader([]byte(`{"focused":true}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if state := decodeState(t, resp); state != string(StateForegroundActive) {
		t.Fatalf("unexpected state %q", state)
	}

	req = httptest.NewRequest(http.MethodPost, "/traffic/focus", bytes.NewReader([]byte(`{"focused":false}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if state := decodeState(t, resp); state != string(StateBackgroundActive) {
		t.Fatalf("unexpected state %q", state)
	}

	req = httptest.NewRequest(http.MethodGet, "/traffic/state", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if state := decodeState(t, resp); state != string(StateBackgroundActive) {
		t.Fatalf("unexpected state %q", state)
	}
}

func TestTrafficHandlersFocusBadBody(t *testing.T) {
	_, app := newHandlerTest(t)

	req := httptest.NewRequest(http.MethodPost, "/traffic/focus", bytes.NewReader([]byte("nope")))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestTrafficHandlersStateBeforeAnyContact(t *testing.T) {
	_, app := newHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/traffic/state", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if state := decodeState(t, resp); state != string(StateUnregistered) {
		t.Fatalf("unexpected state %q", state)
	}
}
