// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package archive implements the filesystem layout that all archived data is written to.
//
// Per-contact data lives in <logDir>/<sanitized contact>/<YYYY-MM-DD>/, containing
// messages.log, calls.log and a media/ subdirectory. Block list data is global and lives
// in <blockedDir>/blocked_actions.log and <blockedDir>/blocked.log.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsarchive/types"
)

// File and directory names inside the archive.
const (
	MessagesFile     = "messages.log"
	CallsFile        = "calls.log"
	MediaDir         = "media"
	BlockActionsFile = "blocked_actions.log"
	BlockListingFile = "blocked.log"
)

// Time layouts used in paths and log entries.
const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "02/01/2006, 15.04.05"
	MediaTimeLayout = "150405"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	maxMediaSuffix = 1000
)

// Store is the append-only filesystem archive.
type Store struct {
	logDir     string
	blockedDir string
	loc        *time.Location

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the time zone used for day directories, media file names and timestamps.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewStore creates a Store rooted at the given directories. Nothing is created on disk until
// the first write.
func NewStore(logDir, blockedDir string, opts ...Option) *Store {
	s := &Store{
		logDir:     logDir,
		blockedDir: blockedDir,
		loc:        time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the time zone of the store.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Timestamp formats t as the human-readable local time used in every log entry.
func (s *Store) Timestamp(t time.Time) string {
	return t.In(s.loc).Format(TimestampLayout)
}

// DayDir returns the directory holding the contact's data for the day of t.
func (s *Store) DayDir(contact types.ContactID, t time.Time) string {
	return filepath.Join(s.logDir, contact.Sanitized(), t.In(s.loc).Format(DateLayout))
}

// AppendMessage appends a formatted entry to the contact's messages.log for the day of t.
func (s *Store) AppendMessage(contact types.ContactID, t time.Time, entry string) error {
	return s.appendFile(filepath.Join(s.DayDir(contact, t), MessagesFile), entry)
}

// AppendCall appends a formatted entry to the contact's calls.log for the day of t.
func (s *Store) AppendCall(contact types.ContactID, t time.Time, entry string) error {
	return s.appendFile(filepath.Join(s.DayDir(contact, t), CallsFile), entry)
}

// AppendBlockAction appends an entry to the global block action log.
func (s *Store) AppendBlockAction(entry string) error {
	return s.appendFile(filepath.Join(s.blockedDir, BlockActionsFile), entry)
}

// AppendBlockListing appends an entry to the global full block list log.
func (s *Store) AppendBlockListing(entry string) error {
	return s.appendFile(filepath.Join(s.blockedDir, BlockListingFile), entry)
}

// WriteMedia stores a media payload in the contact's media directory for the day of t.
// The file is named <HHMMSS>_<fileName>, with a numeric suffix before the extension if that name
// is already taken, and the returned path is relative to the day directory.
func (s *Store) WriteMedia(contact types.ContactID, t time.Time, fileName string, data []byte) (string, error) {
	name := t.In(s.loc).Format(MediaTimeLayout) + "_" + SafeFileName(fileName)
	dir := filepath.Join(s.DayDir(contact, t), MediaDir)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary media file: %w", err)
	}
	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), filePerm); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to set media file permissions: %w", err)
	}
	defer os.Remove(tmp.Name())
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; i <= maxMediaSuffix; i++ {
		if i > 1 {
			name = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		err = os.Link(tmp.Name(), filepath.Join(dir, name))
		if err == nil {
			return path.Join(MediaDir, name), nil
		} else if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to move media file into place: %w", err)
		}
	}
	return "", fmt.Errorf("failed to move media file into place: too many files named %s%s", base, ext)
}

// CheckWritable verifies that the archive root directories can be created and written to.
func (s *Store) CheckWritable() error {
	for _, dir := range []string{s.logDir, s.blockedDir} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		f, err := os.CreateTemp(dir, ".writecheck-*")
		if err != nil {
			return fmt.Errorf("%s is not writable: %w", dir, err)
		}
		_ = f.Close()
		_ = os.Remove(f.Name())
	}
	return nil
}

// appendFile writes the whole entry with a single write on an O_APPEND descriptor.
func (s *Store) appendFile(filename, entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(filename), dirPerm); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(filename), err)
	}
	_, err = f.WriteString(entry)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", filepath.Base(filename), err)
	}
	return nil
}
