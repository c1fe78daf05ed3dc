// Package questionbank reads the question catalog from YAML. The default
// catalog is compiled into the binary; an external file can replace it.
package questionbank

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sync"

	"datalab-quiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var embedded []byte

type catalog struct {
	Levels []struct {
		Level     domain.Level      `yaml:"level"`
		Title     string            `yaml:"title"`
		Questions []domain.Question `yaml:"questions"`
	} `yaml:"levels"`
}

// YAMLLoader parses the catalog on first use and serves pools from memory.
type YAMLLoader struct {
	path string

	once  sync.Once
	pools map[domain.Level][]domain.Question
	err   error
}

// NewYAMLLoader reads path, or the embedded catalog when path is empty.
func NewYAMLLoader(path string) *YAMLLoader {
	return &YAMLLoader{path: path}
}

func (l *YAMLLoader) LoadPool(_ context.Context, level domain.Level) ([]domain.Question, error) {
	pools, err := l.load()
	if err != nil {
		return nil, err
	}
	return pools[level], nil
}

// All returns every question in level order.
func (l *YAMLLoader) All() ([]domain.Question, error) {
	pools, err := l.load()
	if err != nil {
		return nil, err
	}
	var out []domain.Question
	for level := domain.Level(0); level < domain.LevelCount; level++ {
		out = append(out, pools[level]...)
	}
	return out, nil
}

// Validate checks the whole catalog: question shape, unique ids and the
// minimum pool size of every level.
func (l *YAMLLoader) Validate() error {
	pools, err := l.load()
	if err != nil {
		return err
	}
	seen := make(map[string]domain.Level)
	for level := domain.Level(0); level < domain.LevelCount; level++ {
		pool := pools[level]
		if len(pool) < domain.QuestionsPerQuiz {
			return fmt.Errorf("%w: level %d has %d, need %d",
				domain.ErrInsufficientQuestions, level, len(pool), domain.QuestionsPerQuiz)
		}
		for _, q := range pool {
			if err := q.Validate(); err != nil {
				return err
			}
			if prev, dup := seen[q.ID]; dup {
				return fmt.Errorf("%w %q: duplicate id (levels %d and %d)", domain.ErrInvalidQuestion, q.ID, prev, level)
			}
			seen[q.ID] = level
		}
	}
	return nil
}

func (l *YAMLLoader) load() (map[domain.Level][]domain.Question, error) {
	l.once.Do(func() {
		data := embedded
		if l.path != "" {
			raw, err := os.ReadFile(l.path)
			if err != nil {
				l.err = fmt.Errorf("read question bank: %w", err)
				return
			}
			data = raw
		}
		l.pools, l.err = parse(data)
	})
	return l.pools, l.err
}

func parse(data []byte) (map[domain.Level][]domain.Question, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}

	pools := make(map[domain.Level][]domain.Question, len(c.Levels))
	for _, lv := range c.Levels {
		if !lv.Level.Valid() {
			return nil, fmt.Errorf("%w: %d", domain.ErrInvalidLevel, lv.Level)
		}
		for _, q := range lv.Questions {
			q.Level = lv.Level
			pools[lv.Level] = append(pools[lv.Level], q)
		}
	}
	return pools, nil
}
