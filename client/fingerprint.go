// Package client adalah SDK Go untuk device customer dan dashboard staff: fingerprint device,
// koneksi realtime dengan reconnect terbatas, dan store lokal yang diturunkan dari event hub.
package client

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const installIDFile = "install_id"

// DeviceSignals -> sinyal device yang stabil selama instalasi yang sama
type DeviceSignals struct {
	UserAgent string
	Platform  string
	Language  string
	Timezone  string
	Screen    string
	Extra     map[string]string
}

func (s DeviceSignals) normalized() string {
	parts := []string{
		"ua=" + strings.ToLower(strings.TrimSpace(s.UserAgent)),
		"platform=" + strings.ToLower(strings.TrimSpace(s.Platform)),
		"lang=" + strings.ToLower(strings.TrimSpace(s.Language)),
		"tz=" + strings.TrimSpace(s.Timezone),
		"screen=" + strings.TrimSpace(s.Screen),
	}
	keys := make([]string, 0, len(s.Extra))
	for k := range s.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, strings.ToLower(k)+"="+strings.TrimSpace(s.Extra[k]))
	}
	return strings.Join(parts, "|")
}

// ResolveFingerprint -> SHA-256 dari sinyal device + install id yang disimpan di dir.
// Hasilnya hanya kunci lookup session, bukan kredensial.
func ResolveFingerprint(signals DeviceSignals, dir string) (string, error) {
	installID, err := loadInstallID(dir)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(signals.normalized() + "|install=" + installID))
	return hex.EncodeToString(sum[:]), nil
}

func loadInstallID(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("fingerprint: state dir is required")
	}
	path := filepath.Join(dir, installIDFile)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return id, nil
}
