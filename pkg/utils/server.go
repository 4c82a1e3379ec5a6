package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const serverIDFile = ".server_id"

// GetPersistentServerID names this process as a claim holder. An explicit
// override wins; otherwise the id stored under storagePath is reused, and a
// new one derived from the hostname (or a random suffix) is written there on
// first start so restarts keep the same identity.
func GetPersistentServerID(override, storagePath string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}

	idFile := filepath.Join(storagePath, serverIDFile)
	if data, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	id := "autoposter-" + hostToken()
	if err := os.MkdirAll(storagePath, 0o755); err == nil {
		if err := os.WriteFile(idFile, []byte(id), 0o644); err != nil {
			logrus.WithError(err).Warn("[APP] Could not persist server id")
		}
	}
	return id
}

func hostToken() string {
	host, err := os.Hostname()
	if err == nil && host != "" && host != "localhost" {
		clean := strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
				return r
			case r >= 'A' && r <= 'Z':
				return r + ('a' - 'A')
			}
			return -1
		}, host)
		if clean != "" {
			return clean
		}
	}
	return uuid.NewString()[:8]
}
