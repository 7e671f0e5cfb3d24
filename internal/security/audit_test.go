package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewAuditor(t *testing.T) {
	tests := []struct {
		name    string
		logger  *slog.Logger
		enabled bool
	}{
		{
			name:    "enabled with logger",
			logger:  slog.Default(),
			enabled: true,
		},
		{
			name:    "disabled with logger",
			logger:  slog.Default(),
			enabled: false,
		},
		{
			name:    "enabled with nil logger",
			logger:  nil,
			enabled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := NewAuditor(tt.logger, tt.enabled)
			if auditor == nil {
				t.Fatal("NewAuditor() returned nil")
			}
			if auditor.enabled != tt.enabled {
				t.Errorf("enabled = %v, want %v", auditor.enabled, tt.enabled)
			}
			if auditor.logger == nil {
				t.Error("logger should not be nil")
			}
		})
	}
}

func TestAuditor_LogEvent(t *testing.T) {
	t.Run("enabled logs event", func(t *testing.T) {
		var buf bytes.Buffer
		auditor := NewAuditor(slog.New(slog.NewTextHandler(&buf, nil)), true)

		auditor.LogEvent(Event{
			Type:      "session_created",
			Provider:  "gmail",
			UserEmail: "alice@example.com",
			IPAddress: "192.168.1.1",
		})

		out := buf.String()
		if !strings.Contains(out, "security_audit") {
			t.Error("log output missing security_audit marker")
		}
		if !strings.Contains(out, "session_created") {
			t.Error("log output missing event type")
		}
		if !strings.Contains(out, "event_id=") {
			t.Error("log output missing event ID")
		}
		if strings.Contains(out, "alice@example.com") {
			t.Error("log output contains raw email address")
		}
	})

	t.Run("disabled logs nothing", func(t *testing.T) {
		var buf bytes.Buffer
		auditor := NewAuditor(slog.New(slog.NewTextHandler(&buf, nil)), false)

		auditor.LogEvent(Event{Type: "session_created"})

		if buf.Len() != 0 {
			t.Errorf("expected no output when disabled, got %q", buf.String())
		}
	})
}

func TestAuditor_LogCSRFRejected_Reason(t *testing.T) {
	// The HTTP boundary collapses invalid and expired states into one
	// response; the audit trail must keep them apart.
	for _, reason := range []string{"invalid", "expired"} {
		var buf bytes.Buffer
		auditor := NewAuditor(slog.New(slog.NewTextHandler(&buf, nil)), true)

		auditor.LogCSRFRejected(reason, "10.0.0.1")

		out := buf.String()
		if !strings.Contains(out, "csrf_rejected") {
			t.Errorf("log output missing csrf_rejected type: %q", out)
		}
		if !strings.Contains(out, reason) {
			t.Errorf("log output missing reason %q: %q", reason, out)
		}
	}
}

func TestAuditor_LogSessionCreated_HashesEmail(t *testing.T) {
	var buf bytes.Buffer
	auditor := NewAuditor(slog.New(slog.NewTextHandler(&buf, nil)), true)

	auditor.LogSessionCreated("outlook", "bob@contoso.com", "10.0.0.1")

	out := buf.String()
	if strings.Contains(out, "bob@contoso.com") {
		t.Error("log output contains raw email address")
	}
	if !strings.Contains(out, "user_email_hash=") {
		t.Error("log output missing hashed email field")
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want %q", got, "<empty>")
	}

	h1 := hashForLogging("alice@example.com")
	h2 := hashForLogging("alice@example.com")
	h3 := hashForLogging("bob@example.com")

	if h1 != h2 {
		t.Error("hashForLogging is not deterministic")
	}
	if h1 == h3 {
		t.Error("hashForLogging collided for distinct inputs")
	}
	if len(h1) != 16 {
		t.Errorf("hash length = %d, want 16", len(h1))
	}
	if h1 == "alice@example.com" {
		t.Error("hash equals input")
	}
}
