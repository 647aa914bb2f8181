package scheduler

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"example.com/leadimport/internal/ingestion"
)

// Source types a schedule can import from.
const (
	SourceCSV        = "csv"
	SourcePostgreSQL = "postgresql"
)

// File is the layout of the schedules YAML file.
type File struct {
	Schedules []Schedule `yaml:"schedules"`
}

// Schedule is one recurring import.
type Schedule struct {
	Name    string     `yaml:"name"`
	Cron    string     `yaml:"cron"` // six fields, seconds first
	Surface string     `yaml:"surface"`
	Enabled *bool      `yaml:"enabled"`
	Source  SourceSpec `yaml:"source"`
}

// IsEnabled reports whether the schedule should run. Schedules are enabled unless they say
// otherwise.
func (s Schedule) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// SourceSpec describes where a scheduled import reads its rows.
type SourceSpec struct {
	Type                     string `yaml:"type"`
	Path                     string `yaml:"path"`
	ingestion.PostgresSource `yaml:",inline"`
}

// Name returns a human readable name for the source, used as the job's source name.
func (s SourceSpec) Name() string {
	if s.Type == SourceCSV {
		return s.Path
	}
	return "postgresql:" + s.TableOrQuery
}

// LoadFile reads and validates the schedules in path.
func LoadFile(path string) ([]Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedules file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates schedules from YAML.
func Parse(data []byte) ([]Schedule, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse schedules: %w", err)
	}
	seen := make(map[string]bool, len(f.Schedules))
	for i := range f.Schedules {
		s := &f.Schedules[i]
		if err := validate(s); err != nil {
			return nil, fmt.Errorf("schedule %d (%s): %w", i+1, s.Name, err)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate schedule name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return f.Schedules, nil
}

func validate(s *Schedule) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(s.Cron) == "" {
		return fmt.Errorf("cron is required")
	}
	if s.Surface == "" {
		s.Surface = "schedule:" + s.Name
	}
	s.Source.Type = strings.ToLower(s.Source.Type)
	switch s.Source.Type {
	case SourceCSV:
		if s.Source.Path == "" {
			return fmt.Errorf("path is required for csv sources")
		}
	case SourcePostgreSQL:
		if s.Source.TableOrQuery == "" {
			return fmt.Errorf("query is required for postgresql sources")
		}
		if _, err := s.Source.ConnectionString(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported source type %q, only csv and postgresql are supported", s.Source.Type)
	}
	return nil
}

// LoadTable reads the rows of a scheduled source.
func LoadTable(ctx context.Context, src SourceSpec) (ingestion.Table, error) {
	switch src.Type {
	case SourceCSV:
		return ingestion.ReadCSVFile(src.Path)
	case SourcePostgreSQL:
		return ingestion.ReadPostgres(ctx, src.PostgresSource)
	default:
		return ingestion.Table{}, fmt.Errorf("unsupported source type %q", src.Type)
	}
}
