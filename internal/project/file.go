package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoFiles is returned when a project is created without any file.
var ErrNoFiles = errors.New("project has no files")

// ProjectFile is one file of the initial project as delivered by the page.
// Path is absolute ("/src/pages/index.astro").
type ProjectFile struct {
	Path     string `json:"name"`
	Content  string `json:"code"`
	Language string `json:"lang,omitempty"`
}

const filesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "file": {
      "type": "object",
      "required": ["name", "code"],
      "properties": {
        "name": {"type": "string", "pattern": "^/[^/]"},
        "code": {"type": "string"},
        "lang": {"type": "string"}
      }
    },
    "files": {"type": "array", "items": {"$ref": "#/definitions/file"}}
  },
  "oneOf": [
    {"$ref": "#/definitions/files"},
    {
      "type": "object",
      "required": ["files"],
      "properties": {"files": {"$ref": "#/definitions/files"}}
    }
  ]
}`

var compiledFilesSchema = jsonschema.MustCompileString("files.schema.json", filesSchema)

// DecodeFiles parses a files payload. Both the bare array used by the inline
// page payload and the {"files": [...]} request body are accepted.
func DecodeFiles(data []byte) ([]ProjectFile, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse files payload: %w", err)
	}
	if err := compiledFilesSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("files payload schema violation: %w", err)
	}

	var files []ProjectFile
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		if err := json.Unmarshal(data, &files); err != nil {
			return nil, fmt.Errorf("decode files: %w", err)
		}
		return files, nil
	}
	var body struct {
		Files []ProjectFile `json:"files"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	return body.Files, nil
}

// LanguageFor guesses the editor language id from a file extension.
func LanguageFor(path string) string {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return "plaintext"
	}
	switch ext := path[i+1:]; ext {
	case "astro", "vue", "svelte", "css", "html", "json":
		return ext
	case "ts", "mts":
		return "typescript"
	case "js", "mjs", "cjs":
		return "javascript"
	case "jsx", "tsx":
		return "jsx"
	case "md", "mdx":
		return "markdown"
	default:
		return "plaintext"
	}
}
