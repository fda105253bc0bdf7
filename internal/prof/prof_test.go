package prof

import (
	"context"
	"testing"
)

func TestStartDisabled(t *testing.T) {
	stop, err := Start(context.Background(), Options{Enabled: false})
	if err != nil {
		t.Fatalf("disabled start returned error: %v", err)
	}
	stop() // no-op, must not panic
}

func TestStartMissingAddress(t *testing.T) {
	stop, err := Start(context.Background(), Options{Enabled: true})
	if err == nil {
		t.Fatal("expected error for empty server address")
	}
	if stop == nil {
		t.Fatal("stop func should be non-nil even on error")
	}
	stop()
}
