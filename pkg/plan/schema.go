package plan

// Schema is the JSON schema every decoded plan document must satisfy.
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "commands"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "profiling": {"type": "boolean"},
    "queues": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "pattern": "^[A-Za-z0-9_.-]+$"}
        }
      }
    },
    "commands": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "pattern": "^[A-Za-z0-9_.-]+$"},
          "queue": {"type": "string"},
          "after": {"type": "array", "items": {"type": "string"}},
          "duration": {"type": "string"},
          "fail": {"type": "integer", "minimum": -2147483648, "maximum": 0},
          "user": {"type": "boolean"},
          "signal": {
            "type": "object",
            "required": ["status"],
            "additionalProperties": false,
            "properties": {
              "delay": {"type": "string"},
              "status": {"type": "integer", "minimum": -2147483648, "maximum": 0}
            }
          }
        }
      }
    }
  }
}`
