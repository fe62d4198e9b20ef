// ABOUTME: Sample definition documents (memories + named relations)
// ABOUTME: Parsed from YAML or JSON with relation order preserved

package samples

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Reserved memory keys that are metadata, never stored as properties
const (
	KeyName      = "name"
	KeyRelatedTo = "related_to"
	KeyTags      = "tags"
)

// FileSuffixes are tried in order when locating <Collection>_samples.*
var FileSuffixes = []string{"_samples.yaml", "_samples.yml", "_samples.json"}

var (
	// ErrSampleFileNotFound indicates no sample definition exists for a collection
	ErrSampleFileNotFound = errors.New("samples: definition file not found")

	// ErrNoSamples indicates a definition without any memories
	ErrNoSamples = errors.New("samples: definition has no memories")

	// ErrInvalidDefinition indicates a structurally invalid definition
	ErrInvalidDefinition = errors.New("samples: invalid definition")
)

// Memory is one sample record descriptor
type Memory struct {
	Name       string `validate:"required"`
	RelatedTo  []string
	Tags       []string
	Properties map[string]any // every field except name, related_to and tags
}

// Relation links a source memory to ordered target memories, all by name
type Relation struct {
	Source  string   `validate:"required"`
	Targets []string `validate:"dive,required"`
}

// Definition is a parsed sample document
type Definition struct {
	Memories  []Memory   `validate:"dive"`
	Relations []Relation `validate:"dive"`
}

var validate = validator.New()

// FindFile returns the sample definition path for collection in dir
func FindFile(dir, collection string) (string, error) {
	for _, suffix := range FileSuffixes {
		path := filepath.Join(dir, collection+suffix)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat sample file: %w", err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSampleFileNotFound, filepath.Join(dir, collection+FileSuffixes[0]))
}

// LoadFile reads and parses a sample definition file. Files ending in .json
// are decoded as JSON, everything else as YAML.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSampleFileNotFound, path)
		}
		return nil, fmt.Errorf("read sample file: %w", err)
	}

	parse := Parse
	if strings.EqualFold(filepath.Ext(path), ".json") {
		parse = ParseJSON
	}
	def, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes a YAML document of the form
//
//	memories:
//	  - name: X
//	    content: ...
//	relations:
//	  X: [Y, Z]
//
// Relations keep document order. A memory's related_to list becomes a
// relation when the document has no explicit entry for that memory. An
// empty memories or relations key counts as absent.
func Parse(data []byte) (*Definition, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if len(root.Content) == 0 {
		return nil, ErrNoSamples
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrInvalidDefinition)
	}

	def := &Definition{}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i].Value, doc.Content[i+1]
		if isNull(value) {
			continue
		}
		switch key {
		case "memories":
			memories, err := parseMemories(value)
			if err != nil {
				return nil, err
			}
			def.Memories = memories
		case "relations":
			relations, err := parseRelations(value)
			if err != nil {
				return nil, err
			}
			def.Relations = relations
		}
	}
	return finish(def)
}

// ParseJSON decodes the JSON form of the document Parse accepts. Relations
// keep the key order of the relations object.
func ParseJSON(data []byte) (*Definition, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidDefinition)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: top level must be an object", ErrInvalidDefinition)
	}

	def := &Definition{}

	if memories := doc.Get("memories"); memories.Exists() && memories.Type != gjson.Null {
		if !memories.IsArray() {
			return nil, fmt.Errorf("%w: memories must be a list", ErrInvalidDefinition)
		}
		for i, item := range memories.Array() {
			fields, ok := item.Value().(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: memory %d must be an object", ErrInvalidDefinition, i)
			}
			m, err := buildMemory(fields)
			if err != nil {
				return nil, fmt.Errorf("%w: memory %d: %v", ErrInvalidDefinition, i, err)
			}
			def.Memories = append(def.Memories, m)
		}
	}

	if relations := doc.Get("relations"); relations.Exists() && relations.Type != gjson.Null {
		if !relations.IsObject() {
			return nil, fmt.Errorf("%w: relations must be an object", ErrInvalidDefinition)
		}
		var err error
		relations.ForEach(func(key, value gjson.Result) bool {
			var targets []string
			targets, err = stringList(value.Value())
			if err != nil {
				err = fmt.Errorf("%w: relations.%s: %v", ErrInvalidDefinition, key.String(), err)
				return false
			}
			if targets == nil {
				targets = []string{}
			}
			def.Relations = append(def.Relations, Relation{Source: key.String(), Targets: targets})
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return finish(def)
}

// finish merges related_to lists into relations and validates the result
func finish(def *Definition) (*Definition, error) {
	if len(def.Memories) == 0 {
		return nil, ErrNoSamples
	}

	explicit := make(map[string]bool, len(def.Relations))
	for _, r := range def.Relations {
		explicit[r.Source] = true
	}
	for _, m := range def.Memories {
		if len(m.RelatedTo) > 0 && !explicit[m.Name] {
			def.Relations = append(def.Relations, Relation{Source: m.Name, Targets: m.RelatedTo})
			explicit[m.Name] = true
		}
	}

	if err := validate.Struct(def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return def, nil
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}

func parseMemories(node *yaml.Node) ([]Memory, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: memories must be a list (line %d)", ErrInvalidDefinition, node.Line)
	}

	memories := make([]Memory, 0, len(node.Content))
	for _, item := range node.Content {
		var fields map[string]any
		if err := item.Decode(&fields); err != nil {
			return nil, fmt.Errorf("%w: memory at line %d: %v", ErrInvalidDefinition, item.Line, err)
		}
		m, err := buildMemory(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: memory at line %d: %v", ErrInvalidDefinition, item.Line, err)
		}
		memories = append(memories, m)
	}
	return memories, nil
}

// buildMemory splits the reserved keys out of one decoded memory
func buildMemory(fields map[string]any) (Memory, error) {
	m := Memory{Properties: make(map[string]any, len(fields))}
	for k, v := range fields {
		var err error
		switch k {
		case KeyName:
			name, ok := v.(string)
			if !ok {
				err = errors.New("must be a string")
			}
			m.Name = name
		case KeyRelatedTo:
			m.RelatedTo, err = stringList(v)
		case KeyTags:
			m.Tags, err = stringList(v)
		default:
			m.Properties[k] = v
		}
		if err != nil {
			return Memory{}, fmt.Errorf("%s: %v", k, err)
		}
	}
	return m, nil
}

func parseRelations(node *yaml.Node) ([]Relation, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: relations must be a mapping (line %d)", ErrInvalidDefinition, node.Line)
	}

	relations := make([]Relation, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		source := node.Content[i].Value
		var targets []string
		if err := node.Content[i+1].Decode(&targets); err != nil {
			return nil, fmt.Errorf("%w: relations.%s: %v", ErrInvalidDefinition, source, err)
		}
		relations = append(relations, Relation{Source: source, Targets: targets})
	}
	return relations, nil
}

func stringList(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, errors.New("must be a list of strings")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, errors.New("must be a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}
