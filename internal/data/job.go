package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Job is a static job definition: the employer building it's seated in,
// the wage paid per completed shift, and how many residents it can hold
// at once.
type Job struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	BuildingID string `yaml:"building_id"`
	Wage       int64  `yaml:"wage"`
	Vacancies  int    `yaml:"vacancies"`
}

// JobTable holds the static job list, indexed by id.
type JobTable struct {
	jobs  map[string]*Job
	order []string
}

func (t *JobTable) Get(id string) *Job { return t.jobs[id] }

// Len reports how many entries the table holds.
func (t *JobTable) Len() int { return len(t.jobs) }

func (t *JobTable) All(fn func(*Job)) {
	for _, id := range t.order {
		fn(t.jobs[id])
	}
}

type jobListFile struct {
	Jobs []Job `yaml:"jobs"`
}

// LoadJobTable loads the job definitions from a YAML file.
func LoadJobTable(path string) (*JobTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job table: %w", err)
	}
	var f jobListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse job table: %w", err)
	}
	t := &JobTable{jobs: make(map[string]*Job, len(f.Jobs))}
	for i := range f.Jobs {
		j := f.Jobs[i]
		t.jobs[j.ID] = &j
		t.order = append(t.order, j.ID)
	}
	return t, nil
}
