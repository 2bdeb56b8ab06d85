package engine

import "errors"

// ErrNotRunning is returned by Controller operations invoked while no
// configuration snapshot is published.
var ErrNotRunning = errors.New("engine: no configuration has been loaded yet")

// ErrUnknownTarget is returned by TriggerTarget when the named target is
// neither a configured endpoint nor a configured connection.
var ErrUnknownTarget = errors.New("engine: unknown target")
