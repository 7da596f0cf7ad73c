package scoring

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed blockscores.schema.json
var tableSchemaJSON string

const tableSchemaURL = "https://shipscore.ai/schemas/blockscores.schema.json"

var (
	tableSchemaOnce sync.Once
	tableSchema     *jsonschema.Schema
	tableSchemaErr  error
)

func compiledTableSchema() (*jsonschema.Schema, error) {
	tableSchemaOnce.Do(func() {
		tableSchema, tableSchemaErr = jsonschema.CompileString(tableSchemaURL, tableSchemaJSON)
	})
	return tableSchema, tableSchemaErr
}

// Row is one score table line as stored on disk.
type Row struct {
	Name  string `json:"Name" yaml:"name"`
	Score int64  `json:"Score" yaml:"score"`
}

type jsonFile struct {
	BlockScores []Row `json:"BlockScores"`
}

type yamlFile struct {
	BlockScores []Row `yaml:"block_scores"`
}

// Rule is a compiled row. Patterns match anywhere in the key and "." also
// matches newlines.
type Rule struct {
	Pattern string
	Score   int64
	re      *regexp.Regexp
}

func (r Rule) Match(key string) bool { return r.re.MatchString(key) }

// Table is an ordered, read-only list of rules.
type Table struct {
	Rules  []Rule
	Source string
	Digest string
}

// Compile builds a table, failing on the first pattern that does not compile.
func Compile(rows []Row) (*Table, error) {
	t := &Table{Rules: make([]Rule, 0, len(rows))}
	for i, r := range rows {
		re, err := regexp.Compile("(?s)" + r.Name)
		if err != nil {
			return nil, fmt.Errorf("block score %d (%q): %w", i, r.Name, err)
		}
		t.Rules = append(t.Rules, Rule{Pattern: r.Name, Score: r.Score, re: re})
	}
	return t, nil
}

// MustCompile is Compile for fixed tables.
func MustCompile(rows ...Row) *Table {
	t, err := Compile(rows)
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads a score table. .yaml and .yml files use the block_scores list;
// anything else is the BlockScores JSON document.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t *Table
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		t, err = ParseYAML(raw)
	default:
		t, err = ParseJSON(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	t.Source = path
	return t, nil
}

// ParseJSON validates raw against the table schema, then compiles it.
func ParseJSON(raw []byte) (*Table, error) {
	schema, err := compiledTableSchema()
	if err != nil {
		return nil, fmt.Errorf("table schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, err
	}
	var f jsonFile
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	t, err := Compile(f.BlockScores)
	if err != nil {
		return nil, err
	}
	t.Digest = digest(raw)
	return t, nil
}

func ParseYAML(raw []byte) (*Table, error) {
	var f yamlFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	for i, r := range f.BlockScores {
		if r.Name == "" {
			return nil, fmt.Errorf("block score %d: empty name", i)
		}
	}
	t, err := Compile(f.BlockScores)
	if err != nil {
		return nil, err
	}
	t.Digest = digest(raw)
	return t, nil
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
