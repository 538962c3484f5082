package liveness

import (
	"context"
	"fmt"
)

// ReportedError describes an SDK failure observed on the device.
type ReportedError struct {
	Kind    string `json:"kind" binding:"required"`
	Message string `json:"message"`
}

// Report is what a device submits after running the liveness SDK locally:
// either the capture outcome or the error the SDK failed with.
type Report struct {
	Realness      *bool          `json:"realness"`
	SessionID     *string        `json:"sessionId"`
	CapturedImage *string        `json:"capturedImage"`
	Error         *ReportedError `json:"error"`
}

// FromReport returns a Capture that replays a device report. A reported error
// with a known kind becomes an *SDKError; an unknown kind becomes a plain error.
func FromReport(report Report) Capture {
	return CaptureFunc(func(ctx context.Context) (*Outcome, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if report.Error != nil {
			kind, ok := ParseErrorKind(report.Error.Kind)
			if !ok {
				return nil, fmt.Errorf("unrecognised liveness error kind %q: %s", report.Error.Kind, report.Error.Message)
			}
			return nil, &SDKError{Kind: kind, Message: report.Error.Message}
		}
		return &Outcome{
			Realness:      report.Realness,
			SessionID:     report.SessionID,
			CapturedImage: report.CapturedImage,
		}, nil
	})
}
