package llmclient

import (
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestIsTransientProviderErrorNetError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &net.DNSError{Err: "no such host", IsTimeout: true})
	if !isTransientProviderError(err) {
		t.Fatal("expected a net.Error to be classified as transient")
	}
}

func TestIsTransientProviderErrorServerStatus(t *testing.T) {
	for _, msg := range []string{"status 500", "status 502", "status 503", "status 504", "429 too many requests"} {
		if !isTransientProviderError(errors.New(msg)) {
			t.Fatalf("expected %q to be classified as transient", msg)
		}
	}
}

func TestIsTransientProviderErrorClientStatus(t *testing.T) {
	for _, msg := range []string{"status 400 bad request", "status 401 unauthorized", "status 404 not found"} {
		if isTransientProviderError(errors.New(msg)) {
			t.Fatalf("did not expect %q to be classified as transient", msg)
		}
	}
}

func TestIsTransientProviderErrorNil(t *testing.T) {
	if isTransientProviderError(nil) {
		t.Fatal("nil error must not be transient")
	}
}
