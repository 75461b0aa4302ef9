package core

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var defaultCatalog []byte

// MessageCatalog maps stable message keys to user-visible strings. The core
// only ever reports keys; this catalog is the rendering collaborator, with
// the built-in strings overridable from a YAML file for localization.
type MessageCatalog struct {
	messages map[string]string
}

// LoadMessageCatalog builds the catalog from the embedded defaults, merged
// with the optional override file at path.
func LoadMessageCatalog(path string) (*MessageCatalog, error) {
	messages := map[string]string{}
	if err := yaml.Unmarshal(defaultCatalog, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse built-in message catalog: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read message catalog %s: %w", path, err)
		}
		override := map[string]string{}
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to parse message catalog %s: %w", path, err)
		}
		for k, v := range override {
			messages[k] = v
		}
	}
	return &MessageCatalog{messages: messages}, nil
}

// Lookup resolves a message key, falling back to the key itself so a missing
// entry stays diagnosable instead of rendering empty.
func (c *MessageCatalog) Lookup(key string) string {
	if s, ok := c.messages[key]; ok {
		return s
	}
	return key
}
