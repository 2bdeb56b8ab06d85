package store

import "errors"

var (
	// ErrTransient marks a store failure the batcher should retry with backoff.
	ErrTransient = errors.New("store: transient failure")
	// ErrPermanent marks a store failure that should spill to disk instead of retrying.
	ErrPermanent = errors.New("store: permanent failure")
	// ErrClosed is returned by Batcher methods called after Close.
	ErrClosed = errors.New("store: batcher closed")
)
