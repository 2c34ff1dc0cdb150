package httpx

import (
	"testing"
	"time"
)

func TestExternalHTTPClientTimeout(t *testing.T) {
	if Client() == nil {
		t.Fatal("external client must not be nil")
	}
	if Client().Timeout != defaultExternalHTTPTimeout {
		t.Fatalf("external client timeout = %s, want %s", Client().Timeout, defaultExternalHTTPTimeout)
	}
}

func TestConfigureExternalHTTPClient(t *testing.T) {
	original := externalHTTPClient.Timeout
	t.Cleanup(func() {
		externalHTTPClient.Timeout = original
	})

	got := ConfigureExternalHTTPClient(0)
	if got != defaultExternalHTTPTimeout {
		t.Fatalf("ConfigureExternalHTTPClient(0) = %s, want %s", got, defaultExternalHTTPTimeout)
	}

	got = ConfigureExternalHTTPClient(120)
	if got != 120*time.Second {
		t.Fatalf("ConfigureExternalHTTPClient(120) = %s, want %s", got, 120*time.Second)
	}
	if Client().Timeout != 120*time.Second {
		t.Fatalf("configured timeout = %s, want %s", Client().Timeout, 120*time.Second)
	}
}
