package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Pending is a fully written temp file waiting to replace its target
type Pending struct {
	tmpPath string
	target  string
	done    bool
}

// Stage writes data to a temp file next to target and syncs it.
// Nothing is visible at target until Commit.
func Stage(target string, data []byte) (*Pending, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+"-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        // nolint:errcheck
		os.Remove(tmpPath) // nolint:errcheck
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()        // nolint:errcheck
		os.Remove(tmpPath) // nolint:errcheck
		return nil, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) // nolint:errcheck
		return nil, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath) // nolint:errcheck
		return nil, fmt.Errorf("setting permissions: %w", err)
	}

	return &Pending{tmpPath: tmpPath, target: target}, nil
}

// Target returns the path the pending write will replace
func (p *Pending) Target() string {
	return p.target
}

// Commit renames the temp file over the target
func (p *Pending) Commit() error {
	if p.done {
		return errors.New("pending write already finished")
	}
	if err := os.Rename(p.tmpPath, p.target); err != nil {
		return fmt.Errorf("replacing %s: %w", p.target, err)
	}
	p.done = true
	return nil
}

// Discard removes the temp file. It is a no-op after Commit.
func (p *Pending) Discard() error {
	if p.done {
		return nil
	}
	p.done = true
	if err := os.Remove(p.tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing temp file: %w", err)
	}
	return nil
}

// writeFile stages and immediately commits data to target
func writeFile(target string, data []byte) error {
	p, err := Stage(target, data)
	if err != nil {
		return err
	}
	if err := p.Commit(); err != nil {
		p.Discard() // nolint:errcheck
		return err
	}
	return nil
}
