package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/wolfman30/booking-webhook/cmd/mainconfig"
	appconfig "github.com/wolfman30/booking-webhook/internal/config"
	"github.com/wolfman30/booking-webhook/pkg/logging"
)

func newTestApp(t *testing.T) http.Handler {
	t.Helper()
	cfg := &appconfig.Config{
		Env:                "development",
		VerifierMode:       appconfig.VerifierModeStatic,
		CalendarMode:       appconfig.CalendarModeLog,
		BookingTimezone:    "America/New_York",
		ReplayStore:        appconfig.ReplayStoreNone,
		CORSAllowedOrigins: []string{"https://bridal.example.com"},
	}
	app, err := mainconfig.Build(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	t.Cleanup(app.Close)
	return app.Handler
}

func event(method, path, body string, headers map[string]string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Headers: headers,
		Body:    body,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method:   method,
				Path:     path,
				SourceIP: "203.0.113.10",
			},
		},
	}
}

const bookingJSON = `{"contact[first_name]":"Jane","contact[last_name]":"Doe","contact[phone]":"555-123-4567","contact[email]":"jane@example.com","g-recaptcha-response":"tok","appointments":["March 1, 2025 at 9:00 AM"]}`

func TestHandleHealth(t *testing.T) {
	resp, err := handle(context.Background(), newTestApp(t), event(http.MethodGet, "/health", "", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestHandleBooking(t *testing.T) {
	resp, err := handle(context.Background(), newTestApp(t), event(http.MethodPost, "/api/book", bookingJSON, map[string]string{
		"content-type": "application/json",
		"origin":       "https://bridal.example.com",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.StatusCode, resp.Body)
	}
	if got := resp.Headers["access-control-allow-origin"]; got != "https://bridal.example.com" {
		t.Fatalf("expected CORS header, got %q", got)
	}
	if got := resp.Headers["content-type"]; got != "application/json" {
		t.Fatalf("expected json content type, got %q", got)
	}

	var body struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Success {
		t.Fatalf("expected success, got %s", resp.Body)
	}
}

func TestHandleBase64Body(t *testing.T) {
	evt := event(http.MethodPost, "/api/book", base64.StdEncoding.EncodeToString([]byte(bookingJSON)), map[string]string{
		"Content-Type": "application/json",
	})
	evt.IsBase64Encoded = true

	resp, err := handle(context.Background(), newTestApp(t), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.StatusCode, resp.Body)
	}
}

func TestHandleInvalidBase64(t *testing.T) {
	evt := event(http.MethodPost, "/api/book", "%%%not-base64", nil)
	evt.IsBase64Encoded = true

	resp, err := handle(context.Background(), newTestApp(t), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestHandleWrongMethodAndPreflight(t *testing.T) {
	h := newTestApp(t)

	resp, _ := handle(context.Background(), h, event(http.MethodGet, "/api/book", "", nil))
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}

	resp, _ = handle(context.Background(), h, event(http.MethodOptions, "/api/book", "", map[string]string{
		"origin":                        "https://bridal.example.com",
		"access-control-request-method": "POST",
	}))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, resp.StatusCode)
	}
	if resp.Body != "" {
		t.Fatalf("expected empty preflight body, got %q", resp.Body)
	}
}

func TestDecodeBodyAndHeaderValue(t *testing.T) {
	evt := events.APIGatewayV2HTTPRequest{Body: base64.StdEncoding.EncodeToString([]byte("hello")), IsBase64Encoded: true}
	body, err := decodeBody(evt)
	if err != nil || string(body) != "hello" {
		t.Fatalf("unexpected decode result %q, %v", body, err)
	}
	if got := headerValue(map[string]string{"Content-Type": "application/json"}, "content-type"); got != "application/json" {
		t.Fatalf("expected case-insensitive header lookup, got %q", got)
	}
}

func TestResponseBufferDefaults(t *testing.T) {
	rw := newResponseBuffer()
	_, _ = io.WriteString(rw, "ok")
	rw.Header().Add("Set-Cookie", "a=b")
	out := rw.toEvent()
	if out.StatusCode != http.StatusOK || out.Body != "ok" {
		t.Fatalf("unexpected response %+v", out)
	}
	if len(out.Cookies) != 1 {
		t.Fatalf("expected cookie to be surfaced, got %v", out.Cookies)
	}
}
