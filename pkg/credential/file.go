package credential

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FileStore keeps a single credential as a JSON document on disk.
type FileStore struct {
	mu       sync.Mutex
	filepath string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{filepath: path}
}

// Initialize makes sure the directory holding the credential exists and is
// writable.
func (f *FileStore) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.filepath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return pkgerrors.Wrapf(err, "failed to create credential directory %s", dir)
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return pkgerrors.Wrapf(err, "credential directory %s is not writable", dir)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return nil
}

// HasCredential reports whether a credential file exists.
func (f *FileStore) HasCredential() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := os.Stat(f.filepath)
	return err == nil && st.Size() > 0
}

func (f *FileStore) Load() (Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		return Credential{}, ErrNotFound
	}

	var c Credential
	if err := json.Unmarshal(b, &c); err != nil {
		return Credential{}, pkgerrors.Wrapf(err, "failed to unmarshal credential from file %s", f.filepath)
	}

	return c, nil
}

// Save replaces the stored credential. The file is written next to its final
// location and renamed, so a crash never leaves a truncated record.
func (f *FileStore) Save(c Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal credential")
	}

	tmp := f.filepath + ".tmp"
	if err := os.WriteFile(tmp, b, 0600); err != nil {
		return pkgerrors.Wrapf(err, "failed to write file %s", tmp)
	}
	if err := os.Rename(tmp, f.filepath); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			logrus.Warnf("failed to remove %s: %v", tmp, rmErr)
		}
		return pkgerrors.Wrapf(err, "failed to move %s into place", tmp)
	}

	return nil
}

// Clear removes the stored credential. Clearing an empty store succeeds.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.filepath); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "failed to remove file %s", f.filepath)
	}
	return nil
}
