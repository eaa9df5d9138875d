package docstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"report-rag/internal/helper"
	"report-rag/internal/parser"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrUnsupportedType = errors.New("unsupported file format")
)

// Entry describes one stored document.
type Entry struct {
	Name     string
	Path     string
	Digest   string
	Size     int64
	StoredAt time.Time
}

// Store keeps uploaded documents in one flat directory, content addressed
// by sha-256 digest. The registry lives in memory only; nothing survives a
// restart. Capacity is bounded: storing past max_documents evicts the
// oldest entries first. A watcher drops registry entries whose files
// disappear behind the store's back, so a vanished document surfaces as
// ErrNotFound instead of a failed read mid-build.
type Store struct {
	dir     string
	maxDocs int

	mu      sync.Mutex
	entries map[string]*Entry
	order   []string // names, oldest first

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(dir string, maxDocs int) (*Store, error) {
	if err := helper.CreateFolder(dir); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	s := &Store{
		dir:     dir,
		maxDocs: maxDocs,
		entries: make(map[string]*Entry),
		watcher: watcher,
		stopCh:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.watchLoop()
	return s, nil
}

// Close stops the watcher. Stored files stay on disk.
func (s *Store) Close() {
	close(s.stopCh)
	s.watcher.Close()
	s.wg.Wait()
}

// Save stores one document under its uploaded filename. Re-uploading a
// name replaces the previous content.
func (s *Store) Save(name string, r io.Reader) (Entry, error) {
	name = filepath.Base(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return Entry{}, fmt.Errorf("invalid document name %q", name)
	}
	if !parser.SupportedExt(name) {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnsupportedType, strings.ToLower(filepath.Ext(name)))
	}

	tmp, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return Entry{}, err
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Entry{}, fmt.Errorf("writing %s: %w", name, err)
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	path := filepath.Join(s.dir, digest+strings.ToLower(filepath.Ext(name)))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Entry{}, err
	}

	entry := &Entry{Name: name, Path: path, Digest: digest, Size: size, StoredAt: time.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[name]; exists {
		s.dropLocked(name, true)
	}
	s.entries[name] = entry
	s.order = append(s.order, name)
	s.evictLocked()

	log.Debug().Str("file", name).Str("digest", digest).Int64("bytes", size).Msg("Stored document")
	return *entry, nil
}

// Resolve returns the entry for name, verifying its file still exists.
func (s *Store) Resolve(name string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[filepath.Base(name)]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if _, err := os.Stat(entry.Path); err != nil {
		// the watcher may not have caught the removal yet
		s.dropLocked(entry.Name, false)
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return *entry, nil
}

// List returns all entries, oldest first.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.entries[name])
	}
	return out
}

// Remove deletes one document and its file.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = filepath.Base(name)
	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s.dropLocked(name, true)
	return nil
}

// Count is the number of registered documents.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) evictLocked() {
	for s.maxDocs > 0 && len(s.order) > s.maxDocs {
		name := s.order[0]
		log.Info().Str("file", name).Int("max_documents", s.maxDocs).Msg("Evicting oldest document")
		s.dropLocked(name, true)
	}
}

func (s *Store) dropLocked(name string, removeFile bool) {
	entry, ok := s.entries[name]
	if !ok {
		return
	}
	delete(s.entries, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if removeFile && !s.pathSharedLocked(entry.Path) {
		if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", name).Msg("failed to remove stored document")
		}
	}
}

// pathSharedLocked reports whether another entry still points at path;
// identical uploads under different names share one file.
func (s *Store) pathSharedLocked(path string) bool {
	for _, e := range s.entries {
		if e.Path == path {
			return true
		}
	}
	return false
}

func (s *Store) watchLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("docstore watcher error")
		}
	}
}

func (s *Store) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, entry := range s.entries {
		if entry.Path == event.Name {
			log.Warn().Str("file", name).Str("path", event.Name).Msg("stored document disappeared")
			s.dropLocked(name, false)
		}
	}
}
