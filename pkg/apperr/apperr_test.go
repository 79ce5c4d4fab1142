package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{Forbidden("no"), KindForbidden},
		{fmt.Errorf("wrapped: %w", NotFound("gone")), KindNotFound},
		{Validation("bad"), KindValidation},
		{Conflict("stale"), KindConflict},
		{Unauthorized("who"), KindUnauthorized},
		{errors.New("boom"), KindUpstream},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("op: %w", NotFound("recording not found"))
	if !errors.Is(err, NotFound("")) {
		t.Fatal("errors.Is should match on kind")
	}
	if errors.Is(err, Forbidden("")) {
		t.Fatal("errors.Is matched a different kind")
	}
}

func TestUpstreamHidesCause(t *testing.T) {
	cause := errors.New("pq: relation \"recordings\" does not exist")
	err := Upstream("failed to load recording", cause)
	if Message(err) != "failed to load recording" {
		t.Fatalf("message leaked detail: %q", Message(err))
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause should stay reachable for logging")
	}
	timeout := Upstream("failed to load recording", context.DeadlineExceeded)
	if !strings.Contains(Message(timeout), "timed out") {
		t.Fatalf("timeout not mentioned: %q", Message(timeout))
	}
}
