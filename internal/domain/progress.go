package domain

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// ProgressRecord is a user's durable learning progress.
// It only holds value types, so assigning it produces an independent copy.
type ProgressRecord struct {
	UserID              int64            `json:"userId"`
	LevelCompleted      [LevelCount]bool `json:"levelCompleted"`
	TotalTimeSpent      int              `json:"totalTimeSpent"` // minutes
	DataAnalysesCreated int              `json:"dataAnalysesCreated"`
	LastUpdated         time.Time        `json:"lastUpdated"`
}

// NewProgressRecord returns the default record for a user with no history.
func NewProgressRecord(userID int64, now time.Time) ProgressRecord {
	return ProgressRecord{UserID: userID, LastUpdated: now}
}

// CompletedCount is the number of finished levels.
func (p ProgressRecord) CompletedCount() int {
	n := 0
	for _, done := range p.LevelCompleted {
		if done {
			n++
		}
	}
	return n
}

// TotalProgress is the completed share of all levels, 0-100.
func (p ProgressRecord) TotalProgress() float64 {
	return float64(p.CompletedCount()) / LevelCount * 100
}

// CurrentLevel is the first unfinished level, or LevelsCompleted.
func (p ProgressRecord) CurrentLevel() Level {
	for i, done := range p.LevelCompleted {
		if !done {
			return Level(i)
		}
	}
	return LevelsCompleted
}

// AllCompleted reports whether every level flag is set.
func (p ProgressRecord) AllCompleted() bool {
	return p.CompletedCount() == LevelCount
}

// Apply returns a copy of p with upd applied and LastUpdated set to now.
func (p ProgressRecord) Apply(upd ProgressUpdate, now time.Time) ProgressRecord {
	out := p
	for i, v := range upd.Levels {
		if v != nil {
			out.LevelCompleted[i] = *v
		}
	}
	if upd.TotalTimeSpent != nil {
		out.TotalTimeSpent = *upd.TotalTimeSpent
	}
	if upd.DataAnalysesCreated != nil {
		out.DataAnalysesCreated = *upd.DataAnalysesCreated
	}
	out.LastUpdated = now
	return out
}

// ProgressView adds the derived fields for presentation.
type ProgressView struct {
	ProgressRecord
	CompletedCount int     `json:"completedCount"`
	TotalProgress  float64 `json:"totalProgress"`
	CurrentLevel   string  `json:"currentLevel"`
}

// View computes the derived fields from the flags.
func (p ProgressRecord) View() ProgressView {
	return ProgressView{
		ProgressRecord: p,
		CompletedCount: p.CompletedCount(),
		TotalProgress:  p.TotalProgress(),
		CurrentLevel:   p.CurrentLevel().String(),
	}
}

// ProgressUpdate is the closed set of fields a caller may change.
// A nil pointer leaves the field untouched.
type ProgressUpdate struct {
	Levels              [LevelCount]*bool
	TotalTimeSpent      *int
	DataAnalysesCreated *int
}

// SetLevel marks level completion in the update.
func (u *ProgressUpdate) SetLevel(level Level, completed bool) {
	v := completed
	u.Levels[level] = &v
}

// SetAllLevels sets every level flag to completed.
func (u *ProgressUpdate) SetAllLevels(completed bool) {
	for i := range u.Levels {
		u.SetLevel(Level(i), completed)
	}
}

// SetTotalTimeSpent sets the time counter in minutes.
func (u *ProgressUpdate) SetTotalTimeSpent(minutes int) {
	u.TotalTimeSpent = &minutes
}

// SetDataAnalysesCreated sets the analyses counter.
func (u *ProgressUpdate) SetDataAnalysesCreated(n int) {
	u.DataAnalysesCreated = &n
}

// IsEmpty reports whether the update changes nothing.
func (u ProgressUpdate) IsEmpty() bool {
	for _, v := range u.Levels {
		if v != nil {
			return false
		}
	}
	return u.TotalTimeSpent == nil && u.DataAnalysesCreated == nil
}

// Validate rejects empty updates and negative counters.
func (u ProgressUpdate) Validate() error {
	if u.IsEmpty() {
		return ErrEmptyUpdate
	}
	if u.TotalTimeSpent != nil && *u.TotalTimeSpent < 0 {
		return fmt.Errorf("%w: total_time_spent %d", ErrInvalidUpdate, *u.TotalTimeSpent)
	}
	if u.DataAnalysesCreated != nil && *u.DataAnalysesCreated < 0 {
		return fmt.Errorf("%w: data_analyses_created %d", ErrInvalidUpdate, *u.DataAnalysesCreated)
	}
	return nil
}

// Storage column names of the updatable fields.
const (
	FieldTotalTimeSpent      = "total_time_spent"
	FieldDataAnalysesCreated = "data_analyses_created"
)

// LevelField returns the column name of a level's completion flag.
func LevelField(level Level) string {
	return "nivel" + strconv.Itoa(int(level)) + "_completed"
}

// ParseProgressUpdate converts a field map (for example a decoded JSON body)
// into a typed update. Any field outside the updatable set fails the whole
// update.
func ParseProgressUpdate(fields map[string]any) (ProgressUpdate, error) {
	var upd ProgressUpdate
	for name, raw := range fields {
		if level, ok := levelFromField(name); ok {
			b, ok := raw.(bool)
			if !ok {
				return ProgressUpdate{}, fmt.Errorf("%w: %s must be a boolean", ErrInvalidUpdate, name)
			}
			upd.SetLevel(level, b)
			continue
		}
		switch name {
		case FieldTotalTimeSpent:
			n, err := toInt(raw)
			if err != nil {
				return ProgressUpdate{}, fmt.Errorf("%w: %s: %v", ErrInvalidUpdate, name, err)
			}
			upd.SetTotalTimeSpent(n)
		case FieldDataAnalysesCreated:
			n, err := toInt(raw)
			if err != nil {
				return ProgressUpdate{}, fmt.Errorf("%w: %s: %v", ErrInvalidUpdate, name, err)
			}
			upd.SetDataAnalysesCreated(n)
		default:
			return ProgressUpdate{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
	}
	return upd, upd.Validate()
}

func levelFromField(name string) (Level, bool) {
	for i := 0; i < LevelCount; i++ {
		if name == LevelField(Level(i)) {
			return Level(i), true
		}
	}
	return 0, false
}

// toInt accepts whole numbers that fit the INTEGER counter columns.
func toInt(raw any) (int, error) {
	var n float64
	switch v := raw.(type) {
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		n = v
	default:
		return 0, fmt.Errorf("not a number: %v", raw)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, fmt.Errorf("out of range: %v", raw)
	}
	return int(n), nil
}
