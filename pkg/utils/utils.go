// Package utils provides scheduling helpers and a download cache shared by
// the news-globe client packages.
package utils

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("file not found on server")

// DownloadFile downloads a file from a URL to a local path safely.
func DownloadFile(url, path string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	// Create a temp file in the same directory to ensure atomic move
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			log.Printf("Error removing temp file %s: %v", tmpName, err)
		}
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	// Atomic rename to final path
	return os.Rename(tmpName, path)
}

// CacheFileName returns the expected local filename for a given URL and label.
func CacheFileName(url, label string) string {
	urlParts := strings.Split(url, "/")
	fileName := urlParts[len(urlParts)-1]

	sanitized := strings.Trim(label, "[]")
	sanitized = strings.ReplaceAll(sanitized, " ", "_")
	if sanitized != "" {
		fileName = sanitized + "_" + fileName
	}
	return fileName
}

// GetCachedReader returns a reader for the given URL, downloading into
// cacheDir on first use and serving the local copy afterwards.
func GetCachedReader(url, cacheDir, label string) (io.ReadCloser, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	localPath := filepath.Join(cacheDir, CacheFileName(url, label))

	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		log.Printf("%s Downloading %s", label, url)
		if err := DownloadFile(url, localPath); err != nil {
			return nil, err
		}
	} else {
		log.Printf("%s Using cached file: %s", label, localPath)
	}
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return f, nil
}
