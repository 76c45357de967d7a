// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed activity-registry.json
var defaultRegistry []byte

// Default returns the registry shipped with the binary.
func Default() (*ActivityRegistry, error) {
	var reg ActivityRegistry
	if err := json.Unmarshal(defaultRegistry, &reg); err != nil {
		return nil, fmt.Errorf("parse embedded registry: %w", err)
	}
	return &reg, nil
}

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// Find returns the activity registered for taskType.
func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// Validate checks required fields, uniqueness, timeouts and that every
// schema compiles. All problems are reported together.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	var problems []string
	ids := make(map[string]bool)
	taskTypes := make(map[string]bool)
	for _, a := range r.Activities {
		if a.ID == "" {
			problems = append(problems, "activity missing required field: id")
			continue
		}
		if ids[a.ID] {
			problems = append(problems, "duplicate activity id: "+a.ID)
		}
		ids[a.ID] = true

		if a.TaskType == "" {
			problems = append(problems, a.ID+": missing taskType")
		} else if taskTypes[a.TaskType] {
			problems = append(problems, "duplicate taskType: "+a.TaskType)
		}
		taskTypes[a.TaskType] = true

		if _, err := time.ParseDuration(a.Timeout); err != nil {
			problems = append(problems, fmt.Sprintf("%s: invalid timeout %q", a.ID, a.Timeout))
		}
		if _, err := compile(a.InputSchema); err != nil {
			problems = append(problems, fmt.Sprintf("%s: inputSchema: %v", a.ID, err))
		}
		if _, err := compile(a.OutputSchema); err != nil {
			problems = append(problems, fmt.Sprintf("%s: outputSchema: %v", a.ID, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("registry invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidateInput checks job variables against the activity's input schema.
func (a *Activity) ValidateInput(variables []byte) error {
	schema, err := compile(a.InputSchema)
	if err != nil {
		return fmt.Errorf("%s: inputSchema: %w", a.ID, err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(variables))
	if err != nil {
		return fmt.Errorf("%s: read variables: %w", a.ID, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s: %s", a.ID, strings.Join(msgs, "; "))
	}
	return nil
}

func compile(schema map[string]interface{}) (*gojsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema is empty")
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
}
