package plan

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// planSchema describes the structure of a plan document. Kinds are plain
// strings here; unknown kinds are reported by the validator against the
// offending item rather than as structural errors.
const planSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["course_epoch"],
  "additionalProperties": false,
  "properties": {
    "course_id": {"type": "string"},
    "course_name": {"type": "string"},
    "course_epoch": {"type": "string", "minLength": 1},
    "timezone": {"type": "string"},
    "default_due_time": {"type": "string"},
    "topics": {"type": "array", "items": {"$ref": "#/definitions/topic"}},
    "coursework": {"type": "array", "items": {"$ref": "#/definitions/coursework"}}
  },
  "definitions": {
    "topic": {
      "type": "object",
      "required": ["name"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "coursework": {"type": "array", "items": {"$ref": "#/definitions/coursework"}}
      }
    },
    "coursework": {
      "type": "object",
      "required": ["title", "kind"],
      "additionalProperties": false,
      "properties": {
        "title": {"type": "string", "minLength": 1},
        "kind": {"type": "string"},
        "topic": {"type": "string"},
        "due": {"type": "string"},
        "due_time": {"type": "string"},
        "publish": {"type": "string"},
        "points": {"type": "number", "minimum": 0},
        "description": {"type": "string"},
        "choices": {"type": "array", "items": {"type": "string"}},
        "pre_course": {"type": "boolean"},
        "materials": {"type": "array", "items": {"$ref": "#/definitions/material"}}
      }
    },
    "material": {
      "type": "object",
      "required": ["kind", "source"],
      "additionalProperties": false,
      "properties": {
        "kind": {"type": "string"},
        "source": {"type": "string"},
        "title": {"type": "string"}
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(planSchema))
})

// validateStructure checks data (JSON) against planSchema and returns every
// structural problem found.
func validateStructure(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compiling plan schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &ParseError{Problems: []string{err.Error()}, Err: err}
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	sort.Strings(problems)
	return &ParseError{Problems: problems}
}
