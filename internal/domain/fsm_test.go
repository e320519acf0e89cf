package domain

import (
	"context"
	"errors"
	"testing"
)

func TestApplyMovesPendingToTerminal(t *testing.T) {
	for _, action := range []Action{ActionApprove, ActionReject, ActionDrop} {
		next, err := Apply(context.Background(), StatusPending, action)
		if err != nil {
			t.Fatalf("apply %s: %v", action, err)
		}
		if next != action.Result() {
			t.Fatalf("apply %s: expected %s, got %s", action, action.Result(), next)
		}
		if !next.Terminal() {
			t.Fatalf("status %s should be terminal", next)
		}
	}
}

func TestApplyRejectsTerminalSources(t *testing.T) {
	for _, status := range []Status{StatusApproved, StatusRejected, StatusDropped} {
		if CanApply(status, ActionApprove) {
			t.Fatalf("approve should not fire from %s", status)
		}
		_, err := Apply(context.Background(), status, ActionReject)
		if !errors.Is(err, ErrTransitionNotAllowed) {
			t.Fatalf("expected ErrTransitionNotAllowed from %s, got %v", status, err)
		}
	}
}

func TestParseActionAcceptsImperatives(t *testing.T) {
	action, err := ParseAction("Drop")
	if err != nil || action != ActionDrop {
		t.Fatalf("expected dropped, got %q (%v)", action, err)
	}
	if _, err := ParseAction("escalate"); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}
