package utils

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

const serverIDFile = ".server_id"

// GetPersistentServerID resuelve el identificador estable de este nodo,
// usado para marcar el origen de los eventos realtime. Orden de
// resolución: override de entorno, archivo persistido, hostname, y como
// último recurso un ID aleatorio que se persiste para el próximo boot.
func GetPersistentServerID(override, storagePath string) string {
	if override != "" {
		return override
	}

	if id := readStoredID(storagePath); id != "" {
		return id
	}

	if host := hostID(); host != "" {
		return host
	}

	id := "azcrm-" + randomSuffix()
	persistID(storagePath, id)
	return id
}

func readStoredID(storagePath string) string {
	data, err := os.ReadFile(filepath.Join(storagePath, serverIDFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// hostID normaliza el hostname a un token apto para claves de pub/sub.
func hostID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" || hostname == "localhost" {
		return ""
	}
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, hostname)
	if clean == "" {
		return ""
	}
	return "azcrm-" + clean
}

func randomSuffix() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "fallback"
	}
	return hex.EncodeToString(buf)
}

func persistID(storagePath, id string) {
	_ = os.MkdirAll(storagePath, 0755)
	_ = os.WriteFile(filepath.Join(storagePath, serverIDFile), []byte(id), 0644)
}
