package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// keyAccessor reads and writes one dotted configuration key on a Config.
type keyAccessor struct {
	get func(c *Config) string
	set func(c *Config, value string) error
}

// keyTable maps every recognized dotted key to its accessor. The CLI's
// config get/set/list commands and the validation path for repo-file
// writes all go through this table.
var keyTable = map[string]keyAccessor{
	"indexing.max_chunk_tokens":        intKey(func(c *Config) *int { return &c.Indexing.MaxChunkTokens }),
	"indexing.backward_overlap_tokens": intKey(func(c *Config) *int { return &c.Indexing.BackwardOverlapTokens }),
	"indexing.backward_overlap_lines":  intKey(func(c *Config) *int { return &c.Indexing.BackwardOverlapLines }),
	"indexing.forward_overlap_tokens":  intKey(func(c *Config) *int { return &c.Indexing.ForwardOverlapTokens }),
	"indexing.forward_overlap_lines":   intKey(func(c *Config) *int { return &c.Indexing.ForwardOverlapLines }),
	"indexing.max_file_size":           int64Key(func(c *Config) *int64 { return &c.Indexing.MaxFileSize }),
	"indexing.parse_timeout_ms":        intKey(func(c *Config) *int { return &c.Indexing.ParseTimeoutMS }),
	"indexing.max_ast_depth":           intKey(func(c *Config) *int { return &c.Indexing.MaxASTDepth }),
	"indexing.full_scan_interval_s":    intKey(func(c *Config) *int { return &c.Indexing.FullScanIntervalS }),
	"indexing.excluded_paths":          listKey(func(c *Config) *[]string { return &c.Indexing.ExcludedPaths }),
	"embedding.endpoint":               stringKey(func(c *Config) *string { return &c.Embedding.Endpoint }),
	"embedding.model":                  stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions":             intKey(func(c *Config) *int { return &c.Embedding.Dimensions }),
	"embedding.batch_size":             intKey(func(c *Config) *int { return &c.Embedding.BatchSize }),
	"embedding.max_seq_length":         intKey(func(c *Config) *int { return &c.Embedding.MaxSeqLength }),
	"search.token_budget":              intKey(func(c *Config) *int { return &c.Search.TokenBudget }),
	"search.rrf_k":                     intKey(func(c *Config) *int { return &c.Search.RRFK }),
	"search.rrf_weight":                floatKey(func(c *Config) *float64 { return &c.Search.RRFWeight }),
	"search.unranked_demotion":         floatKey(func(c *Config) *float64 { return &c.Search.UnrankedDemotion }),
	"search.recency_boost_enabled":     boolKey(func(c *Config) *bool { return &c.Search.RecencyBoostEnabled }),
	"search.reranker_endpoint":         stringKey(func(c *Config) *string { return &c.Search.RerankerEndpoint }),
	"search.keyword_backend":           stringKey(func(c *Config) *string { return &c.Search.KeywordBackend }),
	"graph.cochange_threshold":         floatKey(func(c *Config) *float64 { return &c.Graph.CochangeThreshold }),
	"graph.cochange_commits":           intKey(func(c *Config) *int { return &c.Graph.CochangeCommits }),
	"watcher.debounce_ms":              intKey(func(c *Config) *int { return &c.Watcher.DebounceMS }),
	"logging.level":                    stringKey(func(c *Config) *string { return &c.Logging.Level }),
}

func intKey(field func(*Config) *int) keyAccessor {
	return keyAccessor{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("expected integer, got %q", value)
			}
			*field(c) = n
			return nil
		},
	}
}

func int64Key(field func(*Config) *int64) keyAccessor {
	return keyAccessor{
		get: func(c *Config) string { return strconv.FormatInt(*field(c), 10) },
		set: func(c *Config, value string) error {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("expected integer, got %q", value)
			}
			*field(c) = n
			return nil
		},
	}
}

func floatKey(field func(*Config) *float64) keyAccessor {
	return keyAccessor{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'g', -1, 64) },
		set: func(c *Config, value string) error {
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("expected number, got %q", value)
			}
			*field(c) = f
			return nil
		},
	}
}

func boolKey(field func(*Config) *bool) keyAccessor {
	return keyAccessor{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, value string) error {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("expected boolean, got %q", value)
			}
			*field(c) = b
			return nil
		},
	}
}

func stringKey(field func(*Config) *string) keyAccessor {
	return keyAccessor{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, value string) error {
			*field(c) = value
			return nil
		},
	}
}

func listKey(field func(*Config) *[]string) keyAccessor {
	return keyAccessor{
		get: func(c *Config) string { return strings.Join(*field(c), ",") },
		set: func(c *Config, value string) error {
			var items []string
			for _, item := range strings.Split(value, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			*field(c) = items
			return nil
		},
	}
}

// KnownKeys returns every recognized dotted key, sorted.
func KnownKeys() []string {
	keys := make([]string, 0, len(keyTable))
	for k := range keyTable {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup resolves a dotted key against this config.
func (c *Config) Lookup(key string) (string, bool) {
	acc, ok := keyTable[key]
	if !ok {
		return "", false
	}
	return acc.get(c), true
}

// Apply sets a dotted key on this config, validating the value type.
func (c *Config) Apply(key, value string) error {
	acc, ok := keyTable[key]
	if !ok {
		return fmt.Errorf("unknown configuration key %q", key)
	}
	return acc.set(c, value)
}

// SetRepoValue writes one key into the repo-local config file, creating it
// if needed. The value is validated against the key's type and the
// resulting config's consistency rules before anything touches disk.
func SetRepoValue(repoRoot, key, value string) error {
	trial := Default()
	if err := trial.Apply(key, value); err != nil {
		return err
	}
	if err := trial.Validate(); err != nil {
		return err
	}

	path := filepath.Join(repoRoot, RepoConfigName)
	doc := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	setNested(doc, strings.Split(key, "."), yamlValue(key, value))

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// setNested writes a value at a dotted path inside a nested map document.
func setNested(doc map[string]any, path []string, value any) {
	if len(path) == 1 {
		doc[path[0]] = value
		return
	}

	child, ok := doc[path[0]].(map[string]any)
	if !ok {
		child = make(map[string]any)
		doc[path[0]] = child
	}
	setNested(child, path[1:], value)
}

// yamlValue converts a validated string value to its typed YAML form so
// the written file round-trips through the strict loader.
func yamlValue(key, value string) any {
	if key == "indexing.excluded_paths" {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
