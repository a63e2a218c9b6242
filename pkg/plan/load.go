package plan

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

var schemaLoader = gojsonschema.NewStringLoader(Schema)

// Load reads and validates the plan at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a YAML plan, validates it against Schema and checks that
// names and references are consistent.
func Parse(data []byte) (*Plan, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse plan YAML: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("plan is empty")
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}

	if err := p.check(); err != nil {
		return nil, err
	}
	return &p, nil
}

func validateSchema(doc interface{}) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
}

// check performs the validation JSON schema cannot express and parses
// durations.
func (p *Plan) check() error {
	var errs []error

	queues := make(map[string]struct{}, len(p.Queues))
	for _, q := range p.Queues {
		if _, dup := queues[q.Name]; dup {
			errs = append(errs, fmt.Errorf("queue %q declared twice", q.Name))
		}
		queues[q.Name] = struct{}{}
	}

	seen := make(map[string]struct{}, len(p.Commands))
	for i := range p.Commands {
		c := &p.Commands[i]

		if _, dup := seen[c.Name]; dup {
			errs = append(errs, fmt.Errorf("command %q declared twice", c.Name))
		}

		if c.User {
			if c.Queue != "" || len(c.After) > 0 {
				errs = append(errs, fmt.Errorf("user command %q cannot have a queue or dependencies", c.Name))
			}
			if c.Duration != "" || c.Fail != 0 {
				errs = append(errs, fmt.Errorf("user command %q cannot have duration or fail", c.Name))
			}
			if c.Signal == nil {
				errs = append(errs, fmt.Errorf("user command %q needs a signal", c.Name))
			} else if !validCode(c.Signal.Status) {
				errs = append(errs, fmt.Errorf("command %q signal status %d is not 0 or a negative int32", c.Name, c.Signal.Status))
			} else if d, err := parseDuration(c.Signal.Delay); err != nil {
				errs = append(errs, fmt.Errorf("command %q signal delay: %w", c.Name, err))
			} else {
				c.Signal.delay = d
			}
		} else {
			if c.Signal != nil {
				errs = append(errs, fmt.Errorf("command %q: only user commands take a signal", c.Name))
			}
			if !validCode(c.Fail) {
				errs = append(errs, fmt.Errorf("command %q fail code %d is not 0 or a negative int32", c.Name, c.Fail))
			}
			if _, ok := queues[c.Queue]; !ok {
				errs = append(errs, fmt.Errorf("command %q references unknown queue %q", c.Name, c.Queue))
			}
			if d, err := parseDuration(c.Duration); err != nil {
				errs = append(errs, fmt.Errorf("command %q duration: %w", c.Name, err))
			} else {
				c.duration = d
			}
		}

		for _, dep := range c.After {
			if _, ok := seen[dep]; !ok {
				errs = append(errs, fmt.Errorf("command %q depends on %q, which is not declared before it", c.Name, dep))
			}
		}

		seen[c.Name] = struct{}{}
	}

	return errors.Join(errs...)
}

// validCode reports whether code fits a terminal status: Complete or an
// error code representable as a Status.
func validCode(code int) bool {
	return code <= 0 && code >= math.MinInt32
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
