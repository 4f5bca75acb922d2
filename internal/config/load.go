package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// LoadMode controls error handling during configuration loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects every error before returning, for
	// operator-facing validation reports.
	LoadModeCollectAll
)

// Error code constants shared with the CLI's validation report.
const (
	ErrCodeRead     = "C001" // file unreadable
	ErrCodeYAML     = "C002" // YAML syntax or unknown field
	ErrCodeSchema   = "C003" // schema constraint violated
	ErrCodeSemantic = "C004" // semantic rule violated
)

// LoadError is one configuration defect with a stable code.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads, validates, and decodes the configuration at path,
// failing on the first defect.
func Load(path string) (*Config, error) {
	cfg, errs := LoadFile(path, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return cfg, nil
}

// LoadFile reads, validates, and decodes the configuration at path.
// In LoadModeCollectAll the returned Config may be non-nil alongside
// errors; callers must not use it unless errs is empty.
func LoadFile(path string, mode LoadMode) (*Config, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeRead, Message: err.Error()}}
	}

	var errs []error

	// Phase 1: shape, against the embedded schema.
	if schemaErrs := validateShape(path, data); len(schemaErrs) > 0 {
		errs = append(errs, schemaErrs...)
		if mode == LoadModeFailFast {
			return nil, errs
		}
	}

	// Phase 2: strict decode. Unknown fields are defects, not noise.
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		errs = append(errs, &LoadError{Code: ErrCodeYAML, Message: err.Error()})
		return nil, errs
	}

	// Phase 3: semantic rules via the domain validators.
	for _, check := range []func() error{
		func() error { _, err := cfg.RegisterMap(); return err },
		func() error { _, err := cfg.RangeTable(); return err },
		func() error { _, err := cfg.Template(); return err },
		func() error { _, err := cfg.Offsets(); return err },
	} {
		if err := check(); err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeSemantic, Message: err.Error()})
			if mode == LoadModeFailFast {
				return nil, errs
			}
		}
	}

	if len(errs) > 0 {
		return &cfg, errs
	}
	return &cfg, nil
}

// validateShape unifies the YAML document with the embedded CUE schema.
func validateShape(path string, data []byte) []error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []error{&LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("embedded schema broken: %v", err)}}
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return []error{&LoadError{Code: ErrCodeSchema, Message: "embedded schema has no #Config definition"}}
	}

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return []error{&LoadError{Code: ErrCodeYAML, Message: err.Error()}}
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return []error{&LoadError{Code: ErrCodeYAML, Message: err.Error()}}
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		var errs []error
		for _, e := range cueerrors.Errors(err) {
			errs = append(errs, &LoadError{Code: ErrCodeSchema, Message: e.Error()})
		}
		return errs
	}
	return nil
}
