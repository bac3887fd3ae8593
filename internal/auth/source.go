package auth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"zephyr/pkg/protocol"
)

// Trust-infrastructure collaborator. Returned key material belongs to the
// caller, which zeroes it after use.
type KeySource interface {
	SessionKey(ctx context.Context, realm string, principal string) (key []byte, err error)
}

// Fixed in-memory key, mostly for tests and single-user hosts
type StaticKeySource struct {
	Key []byte
}

func (source StaticKeySource) SessionKey(ctx context.Context, realm string, principal string) (key []byte, err error) {
	if len(source.Key) == 0 {
		err = fmt.Errorf("%w: no static key configured for %s@%s", protocol.ErrCredentialUnavailable, principal, realm)
		return
	}
	key = append([]byte(nil), source.Key...)
	return
}

// Key file with one "principal@REALM base64key" entry per line.
// Blank lines and lines starting with '#' are ignored.
type FileKeySource struct {
	Path string
}

func (source FileKeySource) SessionKey(ctx context.Context, realm string, principal string) (key []byte, err error) {
	entries, err := readKeyFile(source.Path)
	if err != nil {
		err = fmt.Errorf("%w: %w", protocol.ErrCredentialUnavailable, err)
		return
	}

	identity := principal + "@" + realm
	encoded, found := entries[identity]
	if !found {
		err = fmt.Errorf("%w: no key for %s in %s", protocol.ErrCredentialUnavailable, identity, source.Path)
		return
	}
	key, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		err = fmt.Errorf("%w: invalid key for %s: %w", protocol.ErrCredentialUnavailable, identity, err)
		return
	}
	return
}

func readKeyFile(path string) (entries map[string]string, err error) {
	file, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("failed to open key file: %w", err)
		return
	}
	defer file.Close()

	entries = make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 || !strings.Contains(fields[0], "@") {
			err = fmt.Errorf("key file %s line %d: expected 'principal@REALM key'", path, lineNumber)
			return
		}
		entries[fields[0]] = fields[1]
	}
	err = scanner.Err()
	if err != nil {
		err = fmt.Errorf("failed to read key file: %w", err)
		return
	}
	return
}

// Adds or replaces the key for principal@realm, keeping other entries
func WriteKeyFile(path string, realm string, principal string, key []byte) (err error) {
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("failed to read key file: %w", err)
		return
	}
	err = nil

	identity := principal + "@" + realm
	var out bytes.Buffer
	for _, line := range strings.Split(string(existing), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) > 0 && fields[0] == identity {
			continue
		}
		out.WriteString(trimmed + "\n")
	}
	out.WriteString(identity + " " + base64.StdEncoding.EncodeToString(key) + "\n")

	err = os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		err = fmt.Errorf("failed to create key directory: %w", err)
		return
	}
	err = os.WriteFile(path, out.Bytes(), 0600)
	if err != nil {
		err = fmt.Errorf("failed to write key file: %w", err)
		return
	}
	return
}
