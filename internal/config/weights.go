package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"memlab/internal/classify"
	"memlab/internal/logging"
)

//go:embed weights_default.yaml
var defaultWeightsYAML []byte

// DefaultWeightsYAML returns the annotated starter weights file, suitable
// for writing out as a template.
func DefaultWeightsYAML() []byte {
	out := make([]byte, len(defaultWeightsYAML))
	copy(out, defaultWeightsYAML)
	return out
}

// LoadWeights reads a weights overlay onto the built-in defaults. The
// returned bool reports whether the file existed; callers log the
// fallback when it did not, so a default never applies silently. An empty
// path skips the file outright.
func LoadWeights(path string) (classify.Weights, bool, error) {
	w := classify.DefaultWeights()
	if path == "" {
		return w, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return w, false, nil
		}
		return w, false, fmt.Errorf("failed to read weights: %w", err)
	}

	if err := yaml.Unmarshal(data, &w); err != nil {
		return w, true, fmt.Errorf("failed to parse weights %s: %w", path, err)
	}
	if err := w.Validate(); err != nil {
		return w, true, fmt.Errorf("%s: %w", path, err)
	}
	logDefaultedKeys(path, data)
	return w, true, nil
}

// logDefaultedKeys reports every weight key the overlay file left unset,
// so a default never applies silently.
func logDefaultedKeys(path string, overlay []byte) {
	fileKeys, err := yamlKeyPaths(overlay)
	if err != nil {
		return
	}
	defKeys, err := yamlKeyPaths(defaultWeightsYAML)
	if err != nil {
		return
	}
	missing := make([]string, 0, len(defKeys))
	for key := range defKeys {
		if _, ok := fileKeys[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	for _, key := range missing {
		logging.Get(logging.CategoryBoot).Debug("weights: %s not set in %s, using default", key, path)
	}
}

// yamlKeyPaths flattens a YAML document into its dotted leaf key paths.
func yamlKeyPaths(data []byte) (map[string]struct{}, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	paths := make(map[string]struct{})
	if len(root.Content) > 0 {
		collectKeyPaths(root.Content[0], "", paths)
	}
	return paths, nil
}

func collectKeyPaths(n *yaml.Node, prefix string, out map[string]struct{}) {
	if n.Kind != yaml.MappingNode {
		if prefix != "" {
			out[prefix] = struct{}{}
		}
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if prefix != "" {
			key = prefix + "." + key
		}
		collectKeyPaths(n.Content[i+1], key, out)
	}
}
