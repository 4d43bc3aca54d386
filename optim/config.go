// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optim

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Validator is implemented by configuration structs.
type Validator interface {
	Validate() error
}

// DecodeYAML decodes a YAML document from r into cfg.
// Unknown fields are rejected. Fields absent from the document keep the values
// cfg already holds, so callers usually start from a Default config.
// When cfg implements Validator the decoded config is validated.
func DecodeYAML(r io.Reader, cfg any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w: %w", ErrConfig, err)
	}
	if v, ok := cfg.(Validator); ok {
		return v.Validate()
	}
	return nil
}
