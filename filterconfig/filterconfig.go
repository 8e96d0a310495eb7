// Package filterconfig loads a rdb.ConfiguredFilter from a YAML document,
// the config surface the CLI's -c flag and any embedding caller can use
// instead of repeating -d/-t/-k flags.
package filterconfig

import (
	"fmt"
	"os"
	"regexp"

	rdb "github.com/rdbstream/rdbview"
	"gopkg.in/yaml.v3"
)

// document mirrors the YAML shape documented for the CLI:
//
//	databases: [0, 1]
//	types: [string, hash]
//	keyPattern: "^session:"
type document struct {
	Databases  []uint64 `yaml:"databases"`
	Types      []string `yaml:"types"`
	KeyPattern string   `yaml:"keyPattern"`
}

// Load reads and compiles a filter configuration file.
func Load(path string) (*rdb.ConfiguredFilter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing filter config: %w", err)
	}

	return FromDocumentFields(doc.Databases, doc.Types, doc.KeyPattern)
}

// FromDocumentFields builds a filter from already-parsed fields, shared by
// Load and by the CLI's flag-based construction path.
func FromDocumentFields(databases []uint64, types []string, keyPattern string) (*rdb.ConfiguredFilter, error) {
	f := &rdb.ConfiguredFilter{DBs: databases}

	for _, name := range types {
		ct, ok := rdb.ParseCanonicalType(name)
		if !ok {
			return nil, fmt.Errorf("unknown type %q in filter config", name)
		}
		f.Types = append(f.Types, ct)
	}

	if keyPattern != "" {
		re, err := regexp.Compile(keyPattern)
		if err != nil {
			return nil, fmt.Errorf("compiling key pattern: %w", err)
		}
		f.KeyPattern = re
	}

	return f, nil
}
