package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nosota/mwallet/internal/logging"
)

func setupIdempotentApp(t *testing.T) (*fiber.App, *atomic.Int32) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	var hits atomic.Int32
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	handler := func(c *fiber.Ctx) error {
		hits.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"hits": hits.Load()})
	}
	app.Post("/transfers", handler)
	app.Post("/groups", handler)

	return app, &hits
}

func postWithKey(t *testing.T, app *fiber.App, path, key string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body), resp.Header.Get(idempotencyReplayHeader)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _ := setupIdempotentApp(t)

	status, _, _ := postWithKey(t, app, "/transfers", "")
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyReplaysRecordedResponse(t *testing.T) {
	app, hits := setupIdempotentApp(t)

	status, body, replay := postWithKey(t, app, "/transfers", "k-1")
	if status != fiber.StatusCreated || replay != "" {
		t.Fatalf("first request: status %d replay %q", status, replay)
	}

	status2, body2, replay2 := postWithKey(t, app, "/transfers", "k-1")
	if status2 != fiber.StatusCreated {
		t.Fatalf("replay status: expected %d got %d", fiber.StatusCreated, status2)
	}
	if replay2 != "true" {
		t.Fatalf("expected replay header on second response")
	}
	if body2 != body {
		t.Fatalf("replay body mismatch: %s vs %s", body2, body)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("handler ran %d times, want 1", got)
	}
}

func TestIdempotencyKeysScopedPerEndpoint(t *testing.T) {
	app, hits := setupIdempotentApp(t)

	postWithKey(t, app, "/transfers", "shared")
	_, _, replay := postWithKey(t, app, "/groups", "shared")
	if replay == "true" {
		t.Fatalf("same key on a different endpoint must not replay")
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("handler ran %d times, want 2", got)
	}
}
