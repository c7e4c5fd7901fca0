// Package model defines the HQ state aggregate persisted by wg-federation and the
// typed patches used to mutate it.
//
// Values are never mutated in place: a patch applied to a state or configuration
// returns a reconstructed copy, so callers may hold on to earlier snapshots.
package model

import (
	"fmt"
	"maps"
	"slices"

	"github.com/wg-federation/wg-federation/internal/foundation"
)

// Federation identifies the mesh and the first port handed out per interface kind.
type Federation struct {
	Name             string `yaml:"name" json:"name"`
	InterfaceMinPort int    `yaml:"interface_min_port" json:"interface_min_port"`
	ForumMinPort     int    `yaml:"forum_min_port" json:"forum_min_port"`
	PhoneLineMinPort int    `yaml:"phone_line_min_port" json:"phone_line_min_port"`
}

// MinPort returns the federation's minimum port for kind.
func (f Federation) MinPort(kind InterfaceKind) int {
	switch kind {
	case KindInterface:
		return f.InterfaceMinPort
	case KindForum:
		return f.ForumMinPort
	case KindPhoneLine:
		return f.PhoneLineMinPort
	}
	return 0
}

// WireguardInterface is the [Interface] section of one WireGuard configuration.
type WireguardInterface struct {
	Address                   []string                  `yaml:"address" json:"address"`
	PrivateKey                string                    `yaml:"private_key" json:"private_key"`
	PublicKey                 string                    `yaml:"public_key" json:"public_key"`
	ListenPort                int                       `yaml:"listen_port,omitempty" json:"listen_port,omitempty"`
	PrivateKeyRetrievalMethod PrivateKeyRetrievalMethod `yaml:"private_key_retrieval_method" json:"private_key_retrieval_method"`
	PostUp                    []string                  `yaml:"post_up" json:"post_up"`
}

// WireguardConfiguration is one named WireGuard interface definition.
type WireguardConfiguration struct {
	Name      string             `yaml:"name" json:"name"`
	Kind      InterfaceKind      `yaml:"kind" json:"kind"`
	Interface WireguardInterface `yaml:"interface" json:"interface"`
	SharedPSK string             `yaml:"shared_psk" json:"shared_psk"`
	Path      string             `yaml:"path" json:"path"`
}

// Clone returns a deep copy.
func (c WireguardConfiguration) Clone() WireguardConfiguration {
	c.Interface.Address = slices.Clone(c.Interface.Address)
	c.Interface.PostUp = slices.Clone(c.Interface.PostUp)
	return c
}

// Redacted returns a copy with the private key and pre-shared key blanked.
func (c WireguardConfiguration) Redacted() WireguardConfiguration {
	c = c.Clone()
	if c.Interface.PrivateKey != "" {
		c.Interface.PrivateKey = redactedValue
	}
	if c.SharedPSK != "" {
		c.SharedPSK = redactedValue
	}
	return c
}

const redactedValue = "<redacted>"

// HQState is the root aggregate persisted in the state file.
type HQState struct {
	Federation Federation                        `yaml:"federation" json:"federation"`
	Interfaces map[string]WireguardConfiguration `yaml:"interfaces" json:"interfaces"`
	Forums     map[string]WireguardConfiguration `yaml:"forums" json:"forums"`
	PhoneLines map[string]WireguardConfiguration `yaml:"phone_lines" json:"phone_lines"`
}

// Configurations returns the mapping for kind. The returned map is the state's own;
// treat it as read-only.
func (s HQState) Configurations(kind InterfaceKind) map[string]WireguardConfiguration {
	switch kind {
	case KindInterface:
		return s.Interfaces
	case KindForum:
		return s.Forums
	case KindPhoneLine:
		return s.PhoneLines
	}
	return nil
}

// Configuration looks up a configuration by kind and name.
func (s HQState) Configuration(kind InterfaceKind, name string) (WireguardConfiguration, bool) {
	c, ok := s.Configurations(kind)[name]
	if !ok {
		return WireguardConfiguration{}, false
	}
	return c.Clone(), true
}

// AllConfigurations returns every configuration, grouped in kind order and sorted by name.
func (s HQState) AllConfigurations() []WireguardConfiguration {
	var out []WireguardConfiguration
	for _, kind := range Kinds() {
		byName := s.Configurations(kind)
		for _, name := range slices.Sorted(maps.Keys(byName)) {
			out = append(out, byName[name].Clone())
		}
	}
	return out
}

// Clone returns a deep copy.
func (s HQState) Clone() HQState {
	return HQState{
		Federation: s.Federation,
		Interfaces: cloneConfigurations(s.Interfaces),
		Forums:     cloneConfigurations(s.Forums),
		PhoneLines: cloneConfigurations(s.PhoneLines),
	}
}

// Redacted returns a deep copy with every secret blanked, safe for logs and APIs.
func (s HQState) Redacted() HQState {
	out := s.Clone()
	for _, kind := range Kinds() {
		byName := out.Configurations(kind)
		for name, c := range byName {
			byName[name] = c.Redacted()
		}
	}
	return out
}

func cloneConfigurations(in map[string]WireguardConfiguration) map[string]WireguardConfiguration {
	out := make(map[string]WireguardConfiguration, len(in))
	for name, c := range in {
		out[name] = c.Clone()
	}
	return out
}

// Validate checks the aggregate invariants: every mapping key equals its value's
// name and every configuration lives under the mapping of its kind.
func (s HQState) Validate() foundation.ValidationResult {
	result := foundation.NotEmpty("federation.name", s.Federation.Name)
	for _, kind := range Kinds() {
		for key, c := range s.Configurations(kind) {
			field := fmt.Sprintf("%s.%s", kind, key)
			result = result.
				Combine(foundation.Check(key == c.Name, field+".name", "key_mismatch",
					fmt.Sprintf("mapping key %q does not match configuration name %q", key, c.Name))).
				Combine(foundation.Check(c.Kind == kind, field+".kind", "kind_mismatch",
					fmt.Sprintf("configuration of kind %q stored under %q", c.Kind, kind))).
				Combine(c.Validate(field))
		}
	}
	return result
}

// Validate checks a single configuration; field prefixes error locations.
func (c WireguardConfiguration) Validate(field string) foundation.ValidationResult {
	return foundation.NotEmpty(field+".name", c.Name).
		Combine(foundation.Check(c.Kind.Valid(), field+".kind", "one_of",
			fmt.Sprintf("unknown interface kind %q", c.Kind))).
		Combine(foundation.PortInRange(field+".interface.listen_port", c.Interface.ListenPort))
}
