package mediacache

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"

	"github.com/AzielCF/az-crm/pkg/utils"
)

// Item representa un medio descargado asociado a una URL remota.
// Se guarda en disco y se indexa en memoria por un tiempo corto (TTL)
// para que el pipeline de IA pueda reutilizar la ruta local entre
// ejecuciones consecutivas sin volver a descargar el archivo.
type Item struct {
	Kind      string    `json:"kind"`
	Path      string    `json:"path"`
	ThumbPath string    `json:"thumb_path,omitempty"`
	MimeType  string    `json:"mime_type"`
	Caption   string    `json:"caption,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	mu    sync.RWMutex
	store = make(map[string]Item)

	// ttl define cuánto tiempo permanece indexado un medio descargado.
	// Suficiente para que varias pasadas del pipeline sobre el mismo
	// chat compartan la descarga.
	ttl = 10 * time.Minute
)

func cacheKey(tenantID, rawURL string) string {
	sum := sha1.Sum([]byte(tenantID + "|" + rawURL))
	return hex.EncodeToString(sum[:])
}

// Add registra un Item ya materializado en disco.
func Add(tenantID, rawURL string, item Item) {
	if strings.TrimSpace(rawURL) == "" || strings.TrimSpace(item.Path) == "" {
		return
	}

	mu.Lock()
	defer mu.Unlock()

	item.ExpiresAt = time.Now().Add(ttl)
	store[cacheKey(tenantID, rawURL)] = item
}

// Get devuelve el item válido para una URL, o nil si expiró o el fichero
// ya no existe en disco.
func Get(tenantID, rawURL string) *Item {
	if strings.TrimSpace(rawURL) == "" {
		return nil
	}
	key := cacheKey(tenantID, rawURL)

	mu.RLock()
	item, ok := store[key]
	mu.RUnlock()
	if !ok {
		return nil
	}

	if time.Now().After(item.ExpiresAt) {
		mu.Lock()
		delete(store, key)
		mu.Unlock()
		if p := strings.TrimSpace(item.Path); p != "" {
			_ = os.Remove(p)
		}
		if p := strings.TrimSpace(item.ThumbPath); p != "" {
			_ = os.Remove(p)
		}
		return nil
	}
	if _, err := os.Stat(item.Path); err != nil {
		mu.Lock()
		delete(store, key)
		mu.Unlock()
		return nil
	}
	return &item
}

// Fetch descarga (o reutiliza) el medio apuntado por rawURL dentro del cache
// del tenant. Los WebP se normalizan a PNG porque los proveedores de visión
// no siempre los aceptan; si la miniatura falla se continúa sin ella.
func Fetch(tenantID, rawURL, caption string) (*Item, error) {
	if cached := Get(tenantID, rawURL); cached != nil {
		return cached, nil
	}

	data, fileName, err := utils.DownloadImageFromURL(rawURL)
	if err != nil {
		return nil, err
	}

	mimeType := http.DetectContentType(data)
	if mimeType == "image/webp" {
		webpImage, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode WebP image: %v", err)
		}

		if strings.HasSuffix(strings.ToLower(fileName), ".webp") {
			fileName = fileName[:len(fileName)-5] + ".png"
		} else {
			fileName = fileName + ".png"
		}

		var pngBuffer bytes.Buffer
		if err := imaging.Encode(&pngBuffer, webpImage, imaging.PNG); err != nil {
			return nil, fmt.Errorf("failed to convert WebP to PNG: %v", err)
		}
		data = pngBuffer.Bytes()
		mimeType = "image/png"
	}

	dir := utils.GetTenantCachePath(tenantID)
	key := cacheKey(tenantID, rawURL)
	localPath := filepath.Join(dir, fmt.Sprintf("%s-%s", key[:12], fileName))
	if err := os.WriteFile(localPath, data, 0644); err != nil {
		return nil, err
	}

	item := Item{
		Kind:      kindFromMime(mimeType),
		Path:      localPath,
		MimeType:  mimeType,
		Caption:   caption,
		SizeBytes: int64(len(data)),
	}

	if strings.HasPrefix(mimeType, "image/") {
		if srcImage, err := imaging.Decode(bytes.NewReader(data)); err == nil {
			resized := imaging.Resize(srcImage, 100, 0, imaging.Lanczos)
			thumbPath := filepath.Join(dir, fmt.Sprintf("thumbnails-%s-%s", key[:12], fileName))
			if err := imaging.Save(resized, thumbPath); err == nil {
				item.ThumbPath = thumbPath
			}
		} else {
			logrus.Warnf("[MediaCache] No se pudo generar miniatura de %s: %v", fileName, err)
		}
	}

	logrus.Debugf("[MediaCache] %s cacheado para tenant %s (%s)", fileName, tenantID, humanize.Bytes(uint64(len(data))))
	Add(tenantID, rawURL, item)

	stored := Get(tenantID, rawURL)
	if stored == nil {
		return &item, nil
	}
	return stored, nil
}

func kindFromMime(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	default:
		return "document"
	}
}
