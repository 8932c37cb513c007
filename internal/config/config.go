// Package config holds the explicit configuration value threaded through
// checkpoint's core packages. Nothing here is a package-level mutable
// global; callers build a Config and pass it down, per spec.md's note on
// avoiding process-wide singletons for things like verbosity or debug
// level.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Environment variable names recognised at the CLI boundary. The core
// never reads os.Getenv itself outside of ResolveBackupDir/AutoConfirm;
// everything else takes a Config value.
const (
	EnvBackupDir   = "CHECKPOINT_BACKUP_DIR"
	EnvAutoConfirm = "CHECKPOINT_AUTO_CONFIRM"
)

// Config carries the tunables that would otherwise be global state.
type Config struct {
	// LockTimeout bounds how long acquire() waits for a live-other lock
	// before failing with LockTimeout.
	LockTimeout time.Duration

	// SpaceSafetyFactor is the multiplier applied to source size when
	// checking free space before a create (spec.md 4.F step 3: 1.1).
	SpaceSafetyFactor float64

	// VerifyDigestThreshold is the entry count above which verification
	// degrades from digest comparison to (size, mtime) comparison.
	VerifyDigestThreshold int

	// DirectoryCreatePromptTimeout, RestoreConfirmTimeout and
	// CheckpointSelectTimeout hold the bounds for the three interactive
	// prompts named in spec.md section 5. No package reads them; the
	// restore confirmation timeout comes from restore.Options.ConfirmDelay.
	DirectoryCreatePromptTimeout time.Duration
	RestoreConfirmTimeout        time.Duration
	CheckpointSelectTimeout      time.Duration

	// AutoConfirm records whether CHECKPOINT_AUTO_CONFIRM is set. No
	// package reads it, so it does not suppress any prompt.
	AutoConfirm bool
}

// Default returns the engine's baseline tunables.
func Default() Config {
	return Config{
		LockTimeout:                  30 * time.Second,
		SpaceSafetyFactor:            1.1,
		VerifyDigestThreshold:        100,
		DirectoryCreatePromptTimeout: 30 * time.Second,
		RestoreConfirmTimeout:        30 * time.Second,
		CheckpointSelectTimeout:      60 * time.Second,
		AutoConfirm:                  os.Getenv(EnvAutoConfirm) != "",
	}
}

// ResolveBackupDir implements the default-root selection order from
// spec.md section 6:
//
//  1. explicit is returned verbatim when non-empty.
//  2. CHECKPOINT_BACKUP_DIR/<basename(source)> when the env var is set.
//  3. /var/backups/<basename(source)> when the effective uid is 0 (sudo
//     reachability is not checked).
//  4. <home>/.checkpoint/<basename(source)> otherwise.
func ResolveBackupDir(explicit, source string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	base := filepath.Base(filepath.Clean(source))

	if dir := os.Getenv(EnvBackupDir); dir != "" {
		return filepath.Join(dir, base), nil
	}

	if os.Geteuid() == 0 {
		return filepath.Join("/var/backups", base), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".checkpoint", base), nil
}
