package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadOptionsFile overlays the YAML file at path onto base. Keys absent from
// the file keep their base values.
func LoadOptionsFile(path string, base Options) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config file: %w", err)
	}
	return ParseOptions(data, base)
}

// ParseOptions overlays YAML data onto base. Options may sit under a
// top-level pipeline: key or at the top level of the file.
func ParseOptions(data []byte, base Options) (Options, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return base, fmt.Errorf("parse config: %w", err)
	}
	out := base
	// Copy slices so decoding never writes through to base.
	out.SubtopicTerms = append([]string(nil), base.SubtopicTerms...)
	out.OCRLanguages = append([]string(nil), base.OCRLanguages...)

	if len(root.Content) == 0 {
		return out, nil
	}
	node := optionsNode(root.Content[0])
	if node == nil {
		return out, nil
	}
	if err := node.Decode(&out); err != nil {
		return base, fmt.Errorf("decode pipeline options: %w", err)
	}
	return out, nil
}

// optionsNode returns the mapping holding pipeline options: the value of a
// pipeline key when present, otherwise the document mapping itself.
func optionsNode(doc *yaml.Node) *yaml.Node {
	if doc.Kind != yaml.MappingNode {
		return doc
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == "pipeline" {
			v := doc.Content[i+1]
			if v.Kind == yaml.ScalarNode && v.Tag == "!!null" {
				return nil
			}
			return v
		}
	}
	return doc
}
