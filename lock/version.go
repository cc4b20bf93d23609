package lock

import (
	"github.com/kolkov/reclock/internal/goid"
	"github.com/kolkov/reclock/internal/primitive"
)

// Version information.
const (
	// Version is the current version of the module.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info describes the build configuration of the lock implementation.
type Info struct {
	// Version is the module version string.
	Version string

	// Primitive is the native lock compiled in ("sync.Mutex" or
	// "go-deadlock").
	Primitive string

	// Identity is the goroutine identity source ("petermattis/goid" or
	// "runtime.Stack").
	Identity string

	// DeadlockDetection reports whether the deadlock detector is active.
	DeadlockDetection bool
}

// GetInfo returns the build configuration.
//
// Example:
//
//	info := lock.GetInfo()
//	fmt.Printf("reclock %s (%s, %s)\n", info.Version, info.Primitive, info.Identity)
func GetInfo() Info {
	return Info{
		Version:           Version,
		Primitive:         primitive.Name,
		Identity:          goid.Source,
		DeadlockDetection: primitive.Detecting,
	}
}
