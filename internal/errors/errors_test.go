package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestScanError(t *testing.T) {
	t.Run("error with target", func(t *testing.T) {
		err := NewScanErrorWithTarget(CodeHostUnreachable, "host down", "192.168.1.1")
		expected := "[HOST_UNREACHABLE] host down (target: 192.168.1.1)"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
		if err.Context == nil {
			t.Error("Context should be initialized")
		}
	})

	t.Run("wrapped error keeps cause", func(t *testing.T) {
		cause := fmt.Errorf("connection reset")
		err := WrapScanError(CodeScanFailed, "port scan failed", cause)
		if err.Unwrap() != cause {
			t.Error("Unwrap should return the cause")
		}
		if !errors.Is(err, cause) {
			t.Error("errors.Is should find the cause")
		}
		expected := "[SCAN_FAILED] port scan failed: connection reset"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("with context", func(t *testing.T) {
		err := NewScanError(CodeScanFailed, "x").WithContext("port", 22)
		if err.Context["port"] != 22 {
			t.Errorf("Expected context port 22, got %v", err.Context["port"])
		}
	})
}

func TestErrInvalidTarget(t *testing.T) {
	err := ErrInvalidTarget("10.0.0.0/8")
	if err.Code != CodeTargetInvalid {
		t.Errorf("Expected code %s, got %s", CodeTargetInvalid, err.Code)
	}
	expected := "[TARGET_INVALID] invalid target specification (target: 10.0.0.0/8)"
	if err.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, err.Error())
	}
	if !IsFatal(err) {
		t.Error("invalid target should be fatal")
	}
}

func TestTopologyErrors(t *testing.T) {
	cause := fmt.Errorf("exit status 1")
	err := ErrGatewayUndetectable("ip route show default", cause)
	expected := "[GATEWAY_UNDETECTABLE] gateway undetectable (command: ip route show default): exit status 1"
	if err.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, err.Error())
	}
	if IsFatal(err) {
		t.Error("gateway failure should not be fatal")
	}
}

func TestGetCodeThroughWrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"scan error", ErrInvalidTarget("x"), CodeTargetInvalid},
		{"wrapped scan error", fmt.Errorf("parse: %w", ErrInvalidTarget("x")), CodeTargetInvalid},
		{"discovery error", ErrDiscoveryFailed("10.0.0.0/24", "arp", nil), CodeDiscoveryFailed},
		{"topology error", ErrCommandFailed("traceroute", nil), CodeCommandFailed},
		{"database error", WrapDatabaseError(CodeDatabaseQuery, "query failed", nil), CodeDatabaseQuery},
		{"config error", ErrConfigInvalid("timeout", -1), CodeValidation},
		{"plain error", errors.New("plain"), CodeUnknown},
		{"nil", nil, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", ErrScanCanceled("192.168.1.0/24"))
	if !IsCode(err, CodeCanceled) {
		t.Error("expected CANCELED code through wrapping")
	}
	if IsCode(nil, CodeUnknown) {
		t.Error("nil error should not match any code")
	}
}

func TestDiscoveryErrorMessage(t *testing.T) {
	err := ErrDiscoveryFailed("192.168.1.0/24", "arp", errors.New("arp: not found"))
	expected := "[DISCOVERY_FAILED] network discovery failed (network: 192.168.1.0/24) (method: arp)"
	if err.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, err.Error())
	}
}
