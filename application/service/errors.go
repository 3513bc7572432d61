package service

import "errors"

// Service-level sentinel errors.
var (
	// ErrRepositoryNotFound indicates no repository record matches the
	// requested identifier or URL.
	ErrRepositoryNotFound = errors.New("repolens: repository not found")

	// ErrNotIndexed indicates the repository has no completed index to
	// answer questions from.
	ErrNotIndexed = errors.New("repolens: repository is not indexed")

	// ErrCompleterNotConfigured indicates no completion backend was wired in.
	ErrCompleterNotConfigured = errors.New("repolens: completion backend not configured")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("repolens: client is closed")
)
