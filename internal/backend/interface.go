package backend

import (
	"finsync/internal/coordinator"
	"finsync/internal/remote/memory"
	"finsync/internal/remote/resilient"
)

// CleanupFunc releases the resources opened by a factory.
type CleanupFunc func() error

// Result is a wired data layer.
type Result struct {
	Set *coordinator.Set
	// Guard protects every remote call of Set.
	Guard *resilient.Guard
	// Remote is set when the remote backend is in-process.
	Remote  *memory.Remote
	Cleanup CleanupFunc
}

// BackendType selects the cache store implementation.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) IsValid() bool {
	return bt == SQLiteBackend || bt == MemoryBackend
}

func (bt BackendType) String() string {
	return string(bt)
}

// RemoteType selects the remote gateway implementation.
type RemoteType string

const (
	HTTPRemote   RemoteType = "http"
	MemoryRemote RemoteType = "memory"
)

func (rt RemoteType) IsValid() bool {
	return rt == HTTPRemote || rt == MemoryRemote
}

// Config holds configuration for building a data layer.
type Config struct {
	Cache        BackendType
	SQLiteDBPath string

	Remote        RemoteType
	RemoteBaseURL string
	RemoteToken   string

	Resilience resilient.Config
}
