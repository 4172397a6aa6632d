package config

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Dump formats.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// Dump writes cfg in format, yaml or toml. The output can be loaded back as
// a config file with the matching extension.
func Dump(w io.Writer, cfg *Config, format string) error {
	switch format {
	case "", FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(cfg)
	default:
		return fmt.Errorf("unknown dump format %q", format)
	}
}
