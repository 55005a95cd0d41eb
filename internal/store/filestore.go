package store

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/nightglove/cadence/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	learningFile = "learning.json"
	statsFile    = "stats.json"
	limiterFile  = "limiter.json"
)

// FileStore persists the learning and stats logs as JSON files in a single
// directory. Writes go through a temp file and rename so a crash mid-write
// leaves the previous snapshot intact.
type FileStore struct {
	dir string
	log *zap.Logger
}

// NewFileStore creates the state directory if needed and returns a store
// rooted there.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return &FileStore{
		dir: dir,
		log: logger.Named("store"),
	}, nil
}

// Dir returns the directory the store writes into.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) LoadLearning() (schemas.LearningLog, error) {
	out := emptyLearning()
	if err := s.readJSON(learningFile, &out); err != nil {
		return emptyLearning(), err
	}
	return out, nil
}

func (s *FileStore) LoadStats() (schemas.StatsLog, error) {
	out := emptyStats()
	if err := s.readJSON(statsFile, &out); err != nil {
		return emptyStats(), err
	}
	if out.ActiveFlags == nil {
		out.ActiveFlags = map[schemas.SignalKind]bool{}
	}
	return out, nil
}

func (s *FileStore) LoadLimiter() (schemas.LimiterState, error) {
	var out schemas.LimiterState
	if err := s.readJSON(limiterFile, &out); err != nil {
		return schemas.LimiterState{}, err
	}
	return out, nil
}

func (s *FileStore) SaveLearning(log schemas.LearningLog) error {
	return s.writeJSON(learningFile, log)
}

func (s *FileStore) SaveStats(stats schemas.StatsLog) error {
	return s.writeJSON(statsFile, stats)
}

func (s *FileStore) SaveLimiter(state schemas.LimiterState) error {
	return s.writeJSON(limiterFile, state)
}

// readJSON decodes the named file into v. A missing file is not an error:
// the destination keeps its empty-but-valid default.
func (s *FileStore) readJSON(name string, v interface{}) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Debug("No persisted state yet, starting empty", zap.String("file", name))
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// writeJSON marshals v and atomically replaces the named file.
func (s *FileStore) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}
