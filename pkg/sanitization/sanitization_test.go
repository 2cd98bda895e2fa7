package sanitization

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSanitizeLogString_StripsCRLF(t *testing.T) {
	got := SanitizeLogString("a\r\nb\nc\rd")
	if got != "abcd" {
		t.Fatalf("expected abcd, got %q", got)
	}
}

func TestSanitizeFieldValue_KnownKeys(t *testing.T) {
	if got := SanitizeFieldValue("api_key", "sk-123456"); got != "[REDACTED]" {
		t.Fatalf("expected api_key redacted, got %#v", got)
	}
	if got := SanitizeFieldValue("phone_number", "+1 555-123-4567"); got != "*******4567" {
		t.Fatalf("expected phone partially masked, got %#v", got)
	}
	if got := SanitizeFieldValue("body", "hello there"); got != "hello there" {
		t.Fatalf("expected body preserved, got %#v", got)
	}
}

func TestSanitizeFieldValue_TokenCountsAllowed(t *testing.T) {
	if got := SanitizeFieldValue("tokens_used", 42); got != "42" {
		t.Fatalf("expected tokens_used preserved, got %#v", got)
	}
	if got := SanitizeFieldValue("session_token", "abc"); got != "[REDACTED]" {
		t.Fatalf("expected session_token redacted, got %#v", got)
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("+15551234567"); got != "***4567" {
		t.Fatalf("expected ***4567, got %q", got)
	}
	if got := MaskPhone(""); got != "(empty)" {
		t.Fatalf("expected (empty), got %q", got)
	}
	if got := MaskPhone("123"); got != "***masked***" {
		t.Fatalf("expected masked, got %q", got)
	}
}

func TestSanitizeJSON_RedactsKnownFields(t *testing.T) {
	input := []byte(`{"api_key":"sk-123","nested":{"authorization":"Bearer secret"},"phone":"+15551234567","ok":"v"}`)
	out := SanitizeJSON(input)

	if !strings.Contains(out, `"api_key": "[REDACTED]"`) {
		t.Fatalf("expected api_key redacted, got: %s", out)
	}
	if !strings.Contains(out, `"authorization": "[REDACTED]"`) {
		t.Fatalf("expected authorization redacted, got: %s", out)
	}
	if strings.Contains(out, "+15551234567") {
		t.Fatalf("expected phone masked, got: %s", out)
	}
	if !strings.Contains(out, `"ok": "v"`) {
		t.Fatalf("expected ok preserved, got: %s", out)
	}

	var parsed any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("expected valid json, got error: %v\nout=%s", err, out)
	}
}
