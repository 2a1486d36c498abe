package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"sort"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the YAML file at path on top of DefaultConfig and validates the
// result. When envFile is set and exists, its variables are added to the
// environment first; variables already set are left alone.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result. ${VAR}
// references inside scalar values are expanded with lookup, so expanded
// secrets never need YAML quoting. Unknown keys are rejected.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(doc.Content) > 0 {
		var unset []string
		expandNode(&doc, lookup, &unset)
		if len(unset) > 0 {
			sort.Strings(unset)
			return nil, fmt.Errorf("%w: unset environment variables: %v", ErrInvalid, unset)
		}

		expanded, err := yaml.Marshal(&doc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(expanded))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandNode(n *yaml.Node, lookup func(string) (string, bool), unset *[]string) {
	if n.Kind == yaml.ScalarNode {
		v := expand(n.Value, lookup, unset)
		if v != n.Value && n.Style == 0 {
			// Re-resolve plain scalars so ${PORT} can fill an int.
			n.Tag = ""
		}
		n.Value = v
		return
	}
	for _, c := range n.Content {
		expandNode(c, lookup, unset)
	}
}

// expand replaces ${VAR} references. Bare $ signs, common in CSS attribute
// selectors, are left untouched.
func expand(s string, lookup func(string) (string, bool), unset *[]string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := envRef.FindStringSubmatch(ref)[1]
		v, ok := lookup(name)
		if !ok && !slices.Contains(*unset, name) {
			*unset = append(*unset, name)
		}
		return v
	})
}
