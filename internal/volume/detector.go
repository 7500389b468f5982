// Package volume inspects the OS mount table to find the target store and
// candidate removable source volumes.
package volume

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"cardbox/internal/config"
	"cardbox/internal/logging"
)

// systemMounts are namespaces that never hold removable media. A mount whose
// path equals or lives under one of these is excluded from source discovery
// unless it is the configured target store itself.
var systemMounts = []string{"/boot", "/etc", "/dev", "/proc", "/sys", "/run", "/tmp", "/var"}

// Mount is one row of the OS mount table.
type Mount struct {
	// Device is the underlying block device, e.g. /dev/mmcblk0p1.
	Device string
	// Path is the mount point.
	Path string
	// FSType is the filesystem type, e.g. vfat.
	FSType string
}

// MountReader supplies the current mount table. The production reader parses
// /proc/self/mounts; tests inject fixtures.
type MountReader interface {
	Mounts() ([]Mount, error)
}

// Source is a candidate source volume that survived filtering and probing.
type Source struct {
	Path   string
	Device string
	FSType string
}

// Detector answers the two questions the supervisor keeps asking: is the
// target store usable, and which removable sources are present. Every call
// re-probes; nothing is cached for correctness.
type Detector struct {
	target      string
	prefixes    []string
	patterns    []string
	systemPaths []string
	reader      MountReader
	logger      *slog.Logger

	mu           sync.Mutex
	lastTargetOK *bool // suppresses repeated transition logs only
}

// NewDetector builds a detector over /proc/self/mounts.
func NewDetector(cfg *config.Config, logger *slog.Logger) *Detector {
	return NewDetectorWithReader(cfg, logger, procMountReader{path: "/proc/self/mounts"})
}

// NewDetectorWithReader builds a detector with an injected mount table source.
func NewDetectorWithReader(cfg *config.Config, logger *slog.Logger, reader MountReader) *Detector {
	return &Detector{
		target:      cfg.Paths.TargetDir,
		prefixes:    append([]string{}, cfg.Detect.MediaPrefixes...),
		patterns:    append([]string{}, cfg.Detect.DevicePatterns...),
		systemPaths: append([]string{}, systemMounts...),
		reader:      reader,
		logger:      logging.WithComponent(logger, "volume-detector"),
	}
}

// SetSystemPaths replaces the mount namespaces excluded from source
// discovery. The default list covers the standard system mounts; fixtures
// override it when their mounts live under a temp directory.
func (d *Detector) SetSystemPaths(paths []string) {
	d.systemPaths = append([]string{}, paths...)
}

// Target returns the configured target store path.
func (d *Detector) Target() string { return d.target }

// TargetWritable reports whether the target store path exists, is an actual
// mount point according to the mount table, and accepts a write probe. All
// three must hold.
func (d *Detector) TargetWritable() bool {
	ok := d.probeTarget()
	d.logTargetTransition(ok)
	return ok
}

func (d *Detector) probeTarget() bool {
	info, err := os.Stat(d.target)
	if err != nil || !info.IsDir() {
		return false
	}

	mounts, err := d.reader.Mounts()
	if err != nil {
		d.logger.Warn("mount table unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "mount_table_failed"),
			logging.String(logging.FieldErrorHint, "check /proc availability"),
		)
		return false
	}
	mounted := false
	for _, m := range mounts {
		if m.Path == d.target {
			mounted = true
			break
		}
	}
	if !mounted {
		return false
	}

	if readOnlyFilesystem(d.target) {
		return false
	}
	return writeProbe(d.target) == nil
}

// logTargetTransition logs only when writability flips, so a missing target
// does not flood the log at every poll. The cached value never feeds back
// into the answer.
func (d *Detector) logTargetTransition(ok bool) {
	d.mu.Lock()
	changed := d.lastTargetOK == nil || *d.lastTargetOK != ok
	d.lastTargetOK = &ok
	d.mu.Unlock()
	if !changed {
		return
	}
	if ok {
		d.logger.Info("target store writable", logging.String(logging.FieldTarget, d.target))
	} else {
		d.logger.Warn("target store missing or not writable",
			logging.String(logging.FieldTarget, d.target),
			logging.String(logging.FieldEventType, "target_unwritable"),
			logging.String(logging.FieldErrorHint, "mount the target store at the configured path"),
		)
	}
}

// CandidateSources enumerates mounted removable volumes that are worth
// offering to the supervisor: not a system mount, not the target, under a
// media prefix, backed by a removable-looking device, and passing a
// read+write probe. A failed probe excludes that one candidate only. Order
// follows the mount table, which is deterministic for a given table.
func (d *Detector) CandidateSources() []Source {
	mounts, err := d.reader.Mounts()
	if err != nil {
		d.logger.Warn("mount table unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "mount_table_failed"),
			logging.String(logging.FieldErrorHint, "check /proc availability"),
		)
		return nil
	}

	var sources []Source
	seen := make(map[string]struct{}, len(mounts))
	for _, m := range mounts {
		if m.Path == d.target {
			continue
		}
		if _, dup := seen[m.Path]; dup {
			continue
		}
		if isSystemPath(m.Path, d.systemPaths) {
			continue
		}
		if !d.underMediaPrefix(m.Path) {
			continue
		}
		if !d.deviceMatches(m.Device) {
			continue
		}
		if err := writeProbe(m.Path); err != nil {
			d.logger.Debug("candidate failed write probe",
				logging.Error(err),
				logging.String(logging.FieldSource, m.Path),
			)
			continue
		}
		seen[m.Path] = struct{}{}
		sources = append(sources, Source{Path: m.Path, Device: m.Device, FSType: m.FSType})
	}
	return sources
}

func isSystemPath(path string, namespaces []string) bool {
	if path == "/" {
		return true
	}
	for _, sys := range namespaces {
		if path == sys || strings.HasPrefix(path, sys+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (d *Detector) underMediaPrefix(path string) bool {
	for _, prefix := range d.prefixes {
		if strings.HasPrefix(path, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (d *Detector) deviceMatches(device string) bool {
	if !strings.HasPrefix(device, "/dev/") {
		return false
	}
	name := filepath.Base(device)
	for _, pattern := range d.patterns {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// readOnlyFilesystem checks the mount's read-only flag before bothering with
// a probe file.
func readOnlyFilesystem(path string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false // probe decides
	}
	return st.Flags&unix.ST_RDONLY != 0
}

// writeProbe creates and removes a throwaway file to prove the volume accepts
// writes right now.
func writeProbe(dir string) error {
	f, err := os.CreateTemp(dir, ".cardbox-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if _, err := f.WriteString("probe"); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Remove(name)
}
