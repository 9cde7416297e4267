package console

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// minTokenLength is exclusive: a token must be longer than this once trimmed.
const minTokenLength = 10

var ErrInvalidToken = errors.New("token looks invalid")

// ValidToken reports whether t is worth sending to the server at all.
func ValidToken(t string) bool {
	return len(strings.TrimSpace(t)) > minTokenLength
}

// TokenStore persists the operator token between runs.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

type FileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Load() (string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (s *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(token+"\n"), 0o600)
}

func (s *FileTokenStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Save(token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	return s.Save("")
}

// Session is the single source of truth for the current token. A token set
// with Use is only written to the store after the server accepted it.
type Session struct {
	mu    sync.RWMutex
	store TokenStore
	token string
}

func NewSession(store TokenStore) (*Session, error) {
	tok, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Session{store: store, token: tok}, nil
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) Use(token string) error {
	token = strings.TrimSpace(token)
	if !ValidToken(token) {
		return ErrInvalidToken
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *Session) Persist() error {
	return s.store.Save(s.Token())
}

func (s *Session) Discard() error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return s.store.Clear()
}
