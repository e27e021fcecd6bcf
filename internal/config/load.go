package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
)

var (
	// ErrNotFound is returned (wrapped) with defaults when the parameter file does not exist.
	ErrNotFound = errors.New("parameter file not found")
	// ErrInvalidProfile is returned when the requested profile is outside 1..NumProfiles.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrUnknownModule is returned when the file names a module this model does not have.
	ErrUnknownModule = errors.New("unknown parameter module")
)

// persistKey is the slot holding a module's persistent values.
const persistKey = "0"

// Load reads a parameter-values file in the fitting-tool layout
//
//	{"WDRC": {"0": {...persist...}, "1": {...profile 1...}, ...}, "FBC": {...}}
//
// and overlays the persistent values and the selected profile onto Default().
// Fields absent from the file keep their defaults; arrays present in the file
// replace the default array whole (short arrays are zero-filled). When the file does not
// exist the defaults are returned together with an error wrapping ErrNotFound.
// On any other error the returned Params is nil.
func Load(path string, profile int) (*Params, error) {
	if profile < 1 || profile > NumProfiles {
		return nil, fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidProfile, profile, NumProfiles)
	}

	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read parameter file: %w", err)
	}

	if err := p.Apply(data, profile); err != nil {
		return nil, fmt.Errorf("failed to parse parameter file %s: %w", path, err)
	}
	return p, nil
}

// Apply overlays a parameter-values document onto p.
func (p *Params) Apply(data []byte, profile int) error {
	var doc map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	// Deterministic order keeps error messages stable
	modules := make([]string, 0, len(doc))
	for m := range doc {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	profKey := strconv.Itoa(profile)
	for _, m := range modules {
		persist, prof, ok := p.group(m)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownModule, m)
		}
		slots := doc[m]
		if raw, ok := slots[persistKey]; ok {
			if err := json.Unmarshal(raw, persist); err != nil {
				return fmt.Errorf("%s persist: %w", m, err)
			}
		}
		if raw, ok := slots[profKey]; ok {
			if err := json.Unmarshal(raw, prof); err != nil {
				return fmt.Errorf("%s profile %d: %w", m, profile, err)
			}
		}
	}
	return nil
}

// group returns pointers to a module's persist and profile halves.
func (p *Params) group(module string) (persist, profile any, ok bool) {
	switch module {
	case "SYS":
		return &p.SYS.Persist, &p.SYS.Profile, true
	case "WDRC":
		return &p.WDRC.Persist, &p.WDRC.Profile, true
	case "FBC":
		return &p.FBC.Persist, &p.FBC.Profile, true
	case "EQ":
		return &p.EQ.Persist, &p.EQ.Profile, true
	case "NR":
		return &p.NR.Persist, &p.NR.Profile, true
	}
	return nil, nil, false
}
