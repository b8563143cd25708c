package criteria

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileStore хранит набор в одном JSON-файле (массив Criterion).
// Изменения файла другими процессами приходят подписчикам через fsnotify.
type FileStore struct {
	path   string
	logger *zap.Logger
	subs   subscribers

	mu      sync.Mutex
	lastRaw []byte

	watchOnce sync.Once
	watcher   *fsnotify.Watcher
	done      chan struct{}
}

func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path:   filepath.Clean(path),
		logger: logger.Named("criteria.file"),
		done:   make(chan struct{}),
	}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (Set, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		def := Defaults()
		// первый запуск: засеваем значения по умолчанию
		if err := s.write(def); err != nil {
			s.logger.Warn("seed defaults failed", zap.String("path", s.path), zap.Error(err))
		}
		return def, nil
	}
	if err != nil {
		s.logger.Error("read criteria failed, using defaults", zap.String("path", s.path), zap.Error(err))
		return Defaults(), nil
	}
	set, err := decodeSet(raw)
	if err != nil {
		s.logger.Error("parse criteria failed, using defaults", zap.String("path", s.path), zap.Error(err))
		return Defaults(), nil
	}
	s.mu.Lock()
	s.lastRaw = raw
	s.mu.Unlock()
	return set, nil
}

func (s *FileStore) Save(ctx context.Context, set Set) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.write(set); err != nil {
		return err
	}
	s.subs.notify(set)
	return nil
}

// write пишет атомарно: временный файл + rename.
func (s *FileStore) write(set Set) error {
	if set == nil {
		set = Set{}
	}
	raw, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create criteria dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".criteria-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace criteria file: %w", err)
	}
	s.lastRaw = raw
	return nil
}

func (s *FileStore) Subscribe(fn func(Set)) func() {
	id := s.subs.add(fn)
	s.watchOnce.Do(s.startWatcher)
	return func() { s.subs.remove(id) }
}

func (s *FileStore) startWatcher() {
	select {
	case <-s.done:
		return
	default:
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("file watcher unavailable, only local saves will notify", zap.Error(err))
		return
	}
	// следим за каталогом: rename при атомарной записи меняет inode файла
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		s.logger.Warn("watch criteria dir failed", zap.String("path", s.path), zap.Error(err))
		_ = w.Close()
		return
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	go s.watchLoop(w)
}

func (s *FileStore) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			s.reload()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (s *FileStore) reload() {
	// читаем под mu: write меняет файл и lastRaw вместе, своя запись не вернётся старой
	s.mu.Lock()
	raw, err := os.ReadFile(s.path)
	if err != nil {
		s.mu.Unlock()
		return
	}
	same := bytes.Equal(raw, s.lastRaw)
	if !same {
		s.lastRaw = raw
	}
	s.mu.Unlock()
	if same {
		return
	}
	set, err := decodeSet(raw)
	if err != nil {
		s.logger.Warn("ignoring unparsable criteria change", zap.Error(err))
		return
	}
	s.logger.Info("criteria file changed", zap.Int("count", len(set)))
	s.subs.notify(set)
}

// Close останавливает наблюдение за файлом.
func (s *FileStore) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	s.mu.Lock()
	w := s.watcher
	s.mu.Unlock()
	if w != nil {
		return w.Close()
	}
	return nil
}

func decodeSet(raw []byte) (Set, error) {
	var set Set
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, err
	}
	if set == nil {
		set = Set{}
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}
