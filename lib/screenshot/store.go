// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package screenshot

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	latestSuffix  = "_latest.jpg"
	fileExtension = ".jpg"
)

// StoreConfig configures a Store.
type StoreConfig struct {
	// Directory holds the image files. Created if missing.
	Directory string

	// URLPrefix is prepended to file names to form URLs
	// ("/api/screenshots").
	URLPrefix string

	// PlaceholderURL, PlaceholderWidth, and PlaceholderHeight describe
	// the stand-in image returned when capture fails.
	PlaceholderURL    string
	PlaceholderWidth  int
	PlaceholderHeight int

	Logger *slog.Logger
}

// Store writes screenshot artifacts to a directory.
type Store struct {
	directory   string
	urlPrefix   string
	placeholder Descriptor
	logger      *slog.Logger

	// mu serializes history name allocation and cleanup.
	mu sync.Mutex
}

// NewStore creates the directory if needed and returns a Store.
func NewStore(config StoreConfig) (*Store, error) {
	if config.Directory == "" {
		return nil, errors.New("screenshot: store directory is required")
	}
	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("screenshot: creating %s: %w", config.Directory, err)
	}
	if config.URLPrefix == "" {
		config.URLPrefix = "/api/screenshots"
	}
	if config.PlaceholderURL == "" {
		config.PlaceholderURL = "/images/Screenshot.png"
	}
	if config.PlaceholderWidth == 0 || config.PlaceholderHeight == 0 {
		config.PlaceholderWidth, config.PlaceholderHeight = 1280, 720
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		directory: config.Directory,
		urlPrefix: strings.TrimSuffix(config.URLPrefix, "/"),
		placeholder: Descriptor{
			URL:         config.PlaceholderURL,
			Width:       config.PlaceholderWidth,
			Height:      config.PlaceholderHeight,
			Placeholder: true,
		},
		logger: config.Logger,
	}, nil
}

// Placeholder returns the well-known stand-in descriptor.
func (store *Store) Placeholder() Descriptor { return store.placeholder }

// WriteLatest replaces the target's latest artifact. The URL is stable
// apart from a ?t= query that changes with every capture.
func (store *Store) WriteLatest(id string, data []byte, width, height int, at time.Time) (Descriptor, error) {
	if err := validateID(id); err != nil {
		return Descriptor{}, err
	}
	name := id + latestSuffix
	filePath := filepath.Join(store.directory, name)
	if err := writeFileAtomic(filePath, data); err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		URL:       fmt.Sprintf("%s?t=%d", path.Join(store.urlPrefix, name), at.UnixMilli()),
		Width:     width,
		Height:    height,
		Timestamp: at,
		Digest:    Digest(data),
		Path:      filePath,
		Data:      data,
	}, nil
}

// WriteHistory writes a uniquely named "{id}_{unixmillis}.jpg"
// artifact. A name collision moves the timestamp forward by a
// millisecond until the name is free.
func (store *Store) WriteHistory(id string, data []byte, width, height int, at time.Time) (Descriptor, error) {
	if err := validateID(id); err != nil {
		return Descriptor{}, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	stamp := at.UnixMilli()
	var name, filePath string
	for {
		name = id + "_" + strconv.FormatInt(stamp, 10) + fileExtension
		filePath = filepath.Join(store.directory, name)
		if _, err := os.Stat(filePath); errors.Is(err, fs.ErrNotExist) {
			break
		}
		stamp++
	}
	if err := writeFileAtomic(filePath, data); err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		URL:       path.Join(store.urlPrefix, name),
		Width:     width,
		Height:    height,
		Timestamp: at,
		Digest:    Digest(data),
		Path:      filePath,
		Data:      data,
	}, nil
}

// HistoryEntry is one timestamped artifact on disk.
type HistoryEntry struct {
	Name  string
	Stamp int64
}

// History lists the target's timestamped artifacts, newest first. The
// latest artifact and files belonging to other targets (including
// targets whose id extends this one) are excluded.
func (store *Store) History(id string) ([]HistoryEntry, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(store.directory)
	if err != nil {
		return nil, fmt.Errorf("screenshot: listing %s: %w", store.directory, err)
	}

	prefix := id + "_"
	var history []HistoryEntry
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		stampText := strings.TrimSuffix(strings.TrimPrefix(name, prefix), fileExtension)
		stamp, err := strconv.ParseInt(stampText, 10, 64)
		if err != nil {
			continue
		}
		history = append(history, HistoryEntry{Name: name, Stamp: stamp})
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Stamp > history[j].Stamp })
	return history, nil
}

// Cleanup deletes all but the newest keep timestamped artifacts of the
// target and returns how many were removed. The latest artifact is
// never touched. Individual delete failures are logged and skipped.
func (store *Store) Cleanup(id string, keep int) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	history, err := store.History(id)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(history) <= keep {
		return 0, nil
	}

	removed := 0
	for _, entry := range history[keep:] {
		if err := os.Remove(filepath.Join(store.directory, entry.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			store.logger.Warn("removing expired screenshot", "file", entry.Name, "error", err)
			continue
		}
		removed++
	}
	store.logger.Debug("screenshot retention", "target_id", id, "kept", keep, "removed", removed)
	return removed, nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("screenshot: invalid target id %q", id)
	}
	return nil
}

func writeFileAtomic(filePath string, data []byte) error {
	temporary, err := os.CreateTemp(filepath.Dir(filePath), ".screenshot-*")
	if err != nil {
		return fmt.Errorf("screenshot: creating temporary file: %w", err)
	}
	temporaryPath := temporary.Name()
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("screenshot: writing %s: %w", filePath, err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("screenshot: writing %s: %w", filePath, err)
	}
	if err := os.Chmod(temporaryPath, 0o644); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("screenshot: writing %s: %w", filePath, err)
	}
	if err := os.Rename(temporaryPath, filePath); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("screenshot: writing %s: %w", filePath, err)
	}
	return nil
}
