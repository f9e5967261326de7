package delivery_test

import (
	"testing"
	"time"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/signature"
)

func TestBuildHeadersDefaults(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 30, 45, 123_000_000, time.UTC)
	body := []byte(`{"event":"generation.completed"}`)

	h := delivery.BuildHeaders("generation.completed", "d-1", ts, body, "", nil)

	want := map[string]string{
		"Content-Type":       "application/json",
		"User-Agent":         "Herald-Webhook/" + delivery.Version,
		"X-Herald-Event":     "generation.completed",
		"X-Herald-Delivery":  "d-1",
		"X-Herald-Timestamp": "2025-03-01T12:30:45.123Z",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if _, ok := h["X-Herald-Signature"]; ok {
		t.Error("signature header must be absent without a secret")
	}
}

func TestBuildHeadersSignsExactBody(t *testing.T) {
	body := []byte(`{"event":"x"}`)

	h := delivery.BuildHeaders("x", "d-1", time.Now(), body, "abc", nil)

	if got, want := h.Get(delivery.HeaderSignature), signature.Sign(body, "abc"); got != want {
		t.Fatalf("signature = %q, want %q", got, want)
	}
}

func TestBuildHeadersCustomLayering(t *testing.T) {
	custom := map[string]string{
		"Authorization":      "Bearer token",
		"user-agent":         "custom-agent",
		"x-herald-signature": "sha256=forged",
		"X-Herald-Event":     "forged.event",
	}

	h := delivery.BuildHeaders("generation.completed", "d-1", time.Now(), []byte(`{}`), "secret", custom)

	if h.Get("Authorization") != "Bearer token" {
		t.Error("custom header not applied")
	}
	if h.Get("User-Agent") != "custom-agent" {
		t.Error("custom headers should override non-reserved defaults")
	}
	if h.Get(delivery.HeaderEvent) != "generation.completed" {
		t.Error("event header is reserved")
	}
	if h.Get(delivery.HeaderSignature) != signature.Sign([]byte(`{}`), "secret") {
		t.Error("signature header is reserved")
	}
}

func TestBuildHeadersDropsForgedSignatureWithoutSecret(t *testing.T) {
	h := delivery.BuildHeaders("e", "d", time.Now(), []byte(`{}`), "", map[string]string{
		"X-Herald-Signature": "sha256=forged",
	})
	if _, ok := h["X-Herald-Signature"]; ok {
		t.Fatal("unsigned delivery must not carry a signature header")
	}
}
