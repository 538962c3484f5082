package liveness

import (
	"context"
	"errors"
	"testing"
)

func TestFromReportReturnsOutcome(t *testing.T) {
	alive := true
	session := "S"
	capture := FromReport(Report{Realness: &alive, SessionID: &session})

	outcome, err := capture.Start(context.Background())
	if err != nil {
		t.Fatalf("expected outcome, got error: %v", err)
	}
	if outcome.Realness == nil || !*outcome.Realness {
		t.Fatalf("expected realness true, got %v", outcome.Realness)
	}
	if outcome.SessionID == nil || *outcome.SessionID != "S" {
		t.Fatalf("unexpected session: %v", outcome.SessionID)
	}
	if outcome.CapturedImage != nil {
		t.Fatalf("expected no image, got %v", *outcome.CapturedImage)
	}
}

func TestFromReportMapsKnownKinds(t *testing.T) {
	cases := map[string]ErrorKind{
		"authorization":    ErrorKindAuthorization,
		"PERMISSION":       ErrorKindPermission,
		" user_cancelled ": ErrorKindUserCancelled,
		"generic":          ErrorKindGeneric,
	}
	for name, want := range cases {
		capture := FromReport(Report{Error: &ReportedError{Kind: name, Message: "denied"}})
		_, err := capture.Start(context.Background())

		var sdkErr *SDKError
		if !errors.As(err, &sdkErr) {
			t.Fatalf("%q: expected SDKError, got %T", name, err)
		}
		if sdkErr.Kind != want {
			t.Fatalf("%q: expected kind %s, got %s", name, want, sdkErr.Kind)
		}
		if sdkErr.Message != "denied" {
			t.Fatalf("%q: unexpected message %q", name, sdkErr.Message)
		}
	}
}

func TestFromReportUnknownKindIsPlainError(t *testing.T) {
	capture := FromReport(Report{Error: &ReportedError{Kind: "thermal_shutdown"}})
	_, err := capture.Start(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var sdkErr *SDKError
	if errors.As(err, &sdkErr) {
		t.Fatalf("expected plain error, got SDKError %v", sdkErr)
	}
}

func TestFromReportHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := FromReport(Report{}).Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestErrorKindString(t *testing.T) {
	if got := ErrorKindUserCancelled.String(); got != "user_cancelled" {
		t.Fatalf("unexpected name %q", got)
	}
	if ErrorKindUnspecified.Known() {
		t.Fatal("unspecified kind must not be known")
	}
	if got := (&SDKError{Kind: ErrorKindPermission}).Error(); got != "liveness sdk: permission" {
		t.Fatalf("unexpected message %q", got)
	}
}
