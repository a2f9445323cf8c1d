// Package services defines the business logic of the subject engine.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

var (
	// ErrChannelRequired is returned when a channel identifier is blank.
	ErrChannelRequired = errors.New("channel id is required")

	// ErrAuthorRequired is returned when a message has no author.
	ErrAuthorRequired = errors.New("author id is required")

	// ErrEmptyContent is returned when a message body is blank.
	ErrEmptyContent = errors.New("content is empty")

	// ErrTooLong is returned when a message body exceeds the configured
	// maximum rune length.
	ErrTooLong = errors.New("content too long")

	// ErrSubjectNotFound indicates that the requested subject does not exist.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrInvalidSettings wraps every validation failure of Settings.
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrClosed is returned by ingestion after Close has been called.
	ErrClosed = errors.New("subject service closed")
)
