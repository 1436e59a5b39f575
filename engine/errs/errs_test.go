package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRecovered(t *testing.T) {
	if Recovered(nil) != nil {
		t.Fatal("expected nil for nil recover value")
	}

	cause := fmt.Errorf("device lost")
	err := Recovered(cause)
	if !errors.Is(err, ErrBackendBuild) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}

	err = Recovered("boom")
	if !errors.Is(err, ErrBackendBuild) || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected string panic to be preserved, got %v", err)
	}
}
