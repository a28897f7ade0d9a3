// Package secrets keeps API keys age-encrypted in the .env file. Sealed values
// look like ENC[age:<base64>] and are opened in the process environment at
// startup with the key in $TASKPILOT_PATH/.age-key.
package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/dohr-michael/taskpilot/internal/config"
)

const (
	sealPrefix = "ENC[age:"
	sealSuffix = "]"
)

// KeyPath returns the default identity file.
func KeyPath() string {
	return filepath.Join(config.DataPath(), ".age-key")
}

// EnsureIdentity loads the identity at path, creating it with mode 0600 on
// first use.
func EnsureIdentity(path string) (*age.X25519Identity, error) {
	id, err := LoadIdentity(path)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return id, err
	}

	id, err = age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate age identity: %w", err)
	}
	content := fmt.Sprintf("# created by taskpilot\n# public key: %s\n%s\n", id.Recipient(), id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	// O_EXCL so two racing processes cannot overwrite each other's key.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return LoadIdentity(path)
		}
		return nil, fmt.Errorf("write age key: %w", err)
	}
	defer f.Close()
	if _, err := io.WriteString(f, content); err != nil {
		return nil, fmt.Errorf("write age key: %w", err)
	}
	return id, nil
}

// LoadIdentity reads the first X25519 identity from path.
func LoadIdentity(path string) (*age.X25519Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open age key: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age key %s: %w", path, err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("no X25519 identity in %s", path)
}

// Seal encrypts plaintext for recipient.
func Seal(plaintext string, recipient age.Recipient) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	return sealPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()) + sealSuffix, nil
}

// Open decrypts a value produced by Seal.
func Open(sealed string, identity age.Identity) (string, error) {
	if !IsSealed(sealed) {
		return "", errors.New("value is not sealed")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed[len(sealPrefix) : len(sealed)-len(sealSuffix)])
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	return string(plain), nil
}

// IsSealed reports whether s has the ENC[age:...] form.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, sealPrefix) && strings.HasSuffix(s, sealSuffix)
}

// Reveal replaces every sealed value of the process environment with its
// plaintext and returns how many were opened. The key file is only read when
// something needs opening.
func Reveal(keyPath string) (int, error) {
	var sealed []string
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		if IsSealed(v) {
			sealed = append(sealed, k)
		}
	}
	if len(sealed) == 0 {
		return 0, nil
	}

	id, err := LoadIdentity(keyPath)
	if err != nil {
		return 0, err
	}
	var errs []error
	opened := 0
	for _, k := range sealed {
		plain, err := Open(os.Getenv(k), id)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			continue
		}
		os.Setenv(k, plain)
		opened++
	}
	return opened, errors.Join(errs...)
}
