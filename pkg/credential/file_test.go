package credential

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wifi.json")
	s := NewFileStore(path)

	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if s.HasCredential() {
		t.Fatalf("fresh store must not have a credential")
	}
	if _, err := s.Load(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	c, err := New("Home", "pw1234", time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Save(c); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !s.HasCredential() {
		t.Fatalf("expected a credential after Save")
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.NetworkID != "Home" || got.Secret != "pw1234" || !got.Valid || !got.LastSeen.Equal(c.LastSeen) {
		t.Fatalf("unexpected credential %+v", got)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if s.HasCredential() {
		t.Fatalf("expected no credential after Clear")
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clearing an empty store should succeed, got %v", err)
	}
}

func TestFileStoreUnsavedRecordNotUsable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wifi.json")
	doc := `{"ssid":"Office","password":"secret","saved":false,"lastSeen":"2024-01-02T03:04:05Z"}`
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileStore(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Usable() {
		t.Fatalf("a record with saved=false must not be usable")
	}
}

func TestFileStoreEmptyAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte("  \n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(empty).Load(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty file: expected ErrNotFound, got %v", err)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := NewFileStore(corrupt).Load()
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupt file: expected a decode error, got %v", err)
	}
}

func TestCredentialValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		secret  string
		wantErr bool
	}{
		{name: "ok", id: "Home", secret: "pw1234"},
		{name: "open network", id: "Cafe", secret: ""},
		{name: "max lengths", id: strings.Repeat("a", MaxNetworkIDLen), secret: strings.Repeat("b", MaxSecretLen)},
		{name: "empty id", id: "", secret: "x", wantErr: true},
		{name: "id too long", id: strings.Repeat("a", MaxNetworkIDLen+1), wantErr: true},
		{name: "secret too long", id: "Home", secret: strings.Repeat("b", MaxSecretLen+1), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.id, tt.secret, time.Now())
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestCredentialStringHidesSecret(t *testing.T) {
	c := Credential{NetworkID: "Home", Secret: "hunter2", Valid: true}
	if strings.Contains(c.String(), "hunter2") {
		t.Fatalf("String leaked the secret: %s", c.String())
	}
}
