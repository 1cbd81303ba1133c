package op

import (
	"embed"
	"encoding/binary"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed versions/*.yaml
var versionFiles embed.FS

type versionFile struct {
	Name         string   `yaml:"name"`
	Magic        uint16   `yaml:"magic"`
	JumpUnit     int      `yaml:"jump_unit"`
	LineTable    string   `yaml:"line_table"`
	HaveArgument int      `yaml:"have_argument"`
	ExtendedArg  int      `yaml:"extended_arg"`
	CompareOps   []string `yaml:"compare_ops"`
	Opcodes      []struct {
		Code int    `yaml:"code"`
		Name string `yaml:"name"`
		Kind string `yaml:"kind"`
	} `yaml:"opcodes"`
}

var (
	mu       sync.RWMutex
	registry = map[string]*Version{}
)

func init() {
	entries, err := versionFiles.ReadDir("versions")
	if err != nil {
		panic(err)
	}
	for _, e := range entries {
		data, err := versionFiles.ReadFile(path.Join("versions", e.Name()))
		if err != nil {
			panic(err)
		}
		v, err := Parse(data)
		if err != nil {
			panic(fmt.Sprintf("op: %s: %v", e.Name(), err))
		}
		registry[v.name] = v
	}
}

// Parse builds a Version from a YAML version description.
func Parse(data []byte) (*Version, error) {
	var f versionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Name == "" {
		return nil, fmt.Errorf("version name is required")
	}
	if f.JumpUnit <= 0 {
		return nil, fmt.Errorf("jump_unit must be positive")
	}
	if f.HaveArgument <= 0 || f.HaveArgument > 255 {
		return nil, fmt.Errorf("have_argument out of range: %d", f.HaveArgument)
	}
	if f.ExtendedArg <= 0 || f.ExtendedArg > 255 {
		return nil, fmt.Errorf("extended_arg out of range: %d", f.ExtendedArg)
	}
	format := LineTableFormat(f.LineTable)
	if format != Lnotab && format != LineTable {
		return nil, fmt.Errorf("unknown line table format %q", f.LineTable)
	}
	v := &Version{
		name:         f.Name,
		jumpUnit:     f.JumpUnit,
		lineTable:    format,
		haveArgument: Code(f.HaveArgument),
		extendedArg:  Code(f.ExtendedArg),
		compareOps:   append([]string(nil), f.CompareOps...),
	}
	// CPython magic numbers are a little-endian uint16 followed by "\r\n".
	binary.LittleEndian.PutUint16(v.magic[:2], f.Magic)
	v.magic[2], v.magic[3] = '\r', '\n'

	for _, o := range f.Opcodes {
		if o.Code < 0 || o.Code > 255 {
			return nil, fmt.Errorf("opcode %s out of range: %d", o.Name, o.Code)
		}
		code := Code(o.Code)
		if v.defined[code] {
			return nil, fmt.Errorf("opcode %d defined twice", o.Code)
		}
		kind := None
		switch {
		case o.Kind != "":
			k, err := ParseKind(o.Kind)
			if err != nil {
				return nil, fmt.Errorf("opcode %s: %w", o.Name, err)
			}
			kind = k
		case code >= v.haveArgument:
			kind = RawInt
		}
		if code < v.haveArgument && kind != None {
			return nil, fmt.Errorf("opcode %s below have_argument cannot take %s operand", o.Name, kind)
		}
		v.infos[code] = Info{Code: code, Name: o.Name, Kind: kind}
		v.defined[code] = true
	}
	if !v.defined[v.extendedArg] {
		return nil, fmt.Errorf("extended_arg opcode %d is not defined", v.extendedArg)
	}
	return v, nil
}

// Register adds or replaces a version in the registry.
func Register(v *Version) {
	mu.Lock()
	defer mu.Unlock()
	registry[v.name] = v
}

// Lookup returns the registered version with the given name.
func Lookup(name string) (*Version, error) {
	mu.RLock()
	defer mu.RUnlock()
	if v, ok := registry[strings.TrimPrefix(name, "python")]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("unknown python version %q (known: %s)", name, strings.Join(names(), ", "))
}

// ByMagic returns the registered version whose magic matches.
func ByMagic(magic [4]byte) (*Version, bool) {
	mu.RLock()
	defer mu.RUnlock()
	for _, v := range registry {
		if v.magic == magic {
			return v, true
		}
	}
	return nil, false
}

// Versions returns all registered versions, oldest first.
func Versions() []*Version {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]*Version, 0, len(registry))
	for _, v := range registry {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return binary.LittleEndian.Uint16(out[i].magic[:2]) < binary.LittleEndian.Uint16(out[j].magic[:2])
	})
	return out
}

func names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
