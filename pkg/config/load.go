package config

import (
	"bytes"
	"io"
	"os"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

// Parse decodes a chassis config from YAML (or JSON, which is accepted as
// YAML). Unknown fields are rejected. Parse does not validate the result.
func Parse(data []byte) (*ChassisConfig, error) {
	cfg := &ChassisConfig{}
	if err := decodeStrict(data, cfg); err != nil {
		return nil, errors.Annotate(err, "parsing chassis config")
	}
	return cfg, nil
}

// LoadFile reads and parses the chassis config at path.
func LoadFile(path string) (*ChassisConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "reading chassis config %q", path)
	}
	return Parse(data)
}

// Marshal renders the config as YAML.
func Marshal(c *ChassisConfig) ([]byte, error) {
	data, err := yaml.Marshal(c)
	return data, errors.Trace(err)
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return errors.NotValidf("empty document")
		}
		return errors.NewNotValid(err, "malformed document")
	}
	return nil
}
