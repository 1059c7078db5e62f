// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "gopkg.in/yaml.v3"

// String renders the configuration as YAML with secrets masked.
func (c AppConfig) String() string {
	out, err := yaml.Marshal(MaskSecrets(c))
	if err != nil {
		return "<config: " + err.Error() + ">"
	}
	return string(out)
}
