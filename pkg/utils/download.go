package utils

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

// DownloadImageFromURL fetches the content behind url and returns the raw
// bytes plus a usable file name derived from the URL path or, failing that,
// from the response content type.
func DownloadImageFromURL(rawURL string) ([]byte, string, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(rawURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download media: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 50*1024*1024))
	if err != nil {
		return nil, "", err
	}

	fileName := ""
	if parsed, err := url.Parse(rawURL); err == nil {
		fileName = path.Base(parsed.Path)
	}
	if fileName == "" || fileName == "." || fileName == "/" || !strings.Contains(fileName, ".") {
		ext := ".bin"
		if exts, err := mime.ExtensionsByType(http.DetectContentType(data)); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
		fileName = fmt.Sprintf("download-%d%s", time.Now().UnixNano(), ext)
	}

	return data, fileName, nil
}

// RemoveFile deletes the given paths after delaySecond seconds. Missing files
// are not an error.
func RemoveFile(delaySecond int, paths ...string) error {
	if delaySecond > 0 {
		time.Sleep(time.Duration(delaySecond) * time.Second)
	}
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
