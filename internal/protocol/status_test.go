package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusClassification(t *testing.T) {
	if !StatusOK.Success() || !StatusMultiline.Success() {
		t.Fatalf("2xx statuses must be success")
	}
	if StatusMemoryNotMapped.Success() || Status(199).Success() {
		t.Fatalf("unexpected success classification")
	}
	if !StatusMultiline.Multiline() || StatusOK.Multiline() {
		t.Fatalf("multiline classification mismatch")
	}
	if !StatusBinary.Binary() || StatusReadyForBinary.Binary() {
		t.Fatalf("binary classification mismatch")
	}
	if got := Status(499).String(); got != "status 499" {
		t.Fatalf("unknown status name got=%q", got)
	}
}

func TestServerErrorMatching(t *testing.T) {
	err := fmt.Errorf("getmem: %w", &ServerError{Status: StatusMemoryNotMapped, Message: "memory not mapped"})
	if !errors.Is(err, ErrServer) {
		t.Fatalf("expected ErrServer match, got %v", err)
	}
	status, ok := StatusOf(err)
	if !ok || status != StatusMemoryNotMapped {
		t.Fatalf("unexpected status=%d ok=%v", status, ok)
	}
	if _, ok := StatusOf(errors.New("other")); ok {
		t.Fatalf("plain error must not carry a status")
	}
}
