package emergency

import "errors"

var (
	// ErrAlreadyActive is returned when an alert is already live for
	// this flow; duplicate triggers must not spawn a second alert.
	ErrAlreadyActive = errors.New("emergency: alert already active")

	// ErrAlertDispatchFailed marks a trigger the safety service did
	// not accept. The flow stays in triggering so the caller can retry.
	ErrAlertDispatchFailed = errors.New("emergency: alert dispatch failed")

	// ErrNoActiveAlert is returned by Cancel when nothing is live.
	ErrNoActiveAlert = errors.New("emergency: no active alert")
)
