package model

import "slices"

// Ptr returns a pointer to v. Handy for building patches in code.
func Ptr[T any](v T) *T { return &v }

// FederationPatch is a partial Federation. Nil fields are left untouched.
type FederationPatch struct {
	Name             *string `yaml:"name,omitempty" json:"name,omitempty"`
	InterfaceMinPort *int    `yaml:"interface_min_port,omitempty" json:"interface_min_port,omitempty"`
	ForumMinPort     *int    `yaml:"forum_min_port,omitempty" json:"forum_min_port,omitempty"`
	PhoneLineMinPort *int    `yaml:"phone_line_min_port,omitempty" json:"phone_line_min_port,omitempty"`
}

// ApplyTo returns f with the patch applied.
func (p FederationPatch) ApplyTo(f Federation) Federation {
	set(&f.Name, p.Name)
	set(&f.InterfaceMinPort, p.InterfaceMinPort)
	set(&f.ForumMinPort, p.ForumMinPort)
	set(&f.PhoneLineMinPort, p.PhoneLineMinPort)
	return f
}

// InterfacePatch is a partial WireguardInterface. List fields replace the
// current list wholesale when present.
type InterfacePatch struct {
	Address                   *[]string                  `yaml:"address,omitempty" json:"address,omitempty"`
	PrivateKey                *string                    `yaml:"private_key,omitempty" json:"private_key,omitempty"`
	PublicKey                 *string                    `yaml:"public_key,omitempty" json:"public_key,omitempty"`
	ListenPort                *int                       `yaml:"listen_port,omitempty" json:"listen_port,omitempty"`
	PrivateKeyRetrievalMethod *PrivateKeyRetrievalMethod `yaml:"private_key_retrieval_method,omitempty" json:"private_key_retrieval_method,omitempty"`
	PostUp                    *[]string                  `yaml:"post_up,omitempty" json:"post_up,omitempty"`
}

// ApplyTo returns i with the patch applied. i is not modified.
func (p InterfacePatch) ApplyTo(i WireguardInterface) WireguardInterface {
	i.Address = slices.Clone(i.Address)
	i.PostUp = slices.Clone(i.PostUp)
	if p.Address != nil {
		i.Address = slices.Clone(*p.Address)
	}
	if p.PostUp != nil {
		i.PostUp = slices.Clone(*p.PostUp)
	}
	set(&i.PrivateKey, p.PrivateKey)
	set(&i.PublicKey, p.PublicKey)
	set(&i.ListenPort, p.ListenPort)
	set(&i.PrivateKeyRetrievalMethod, p.PrivateKeyRetrievalMethod)
	return i
}

// ConfigurationPatch is a partial WireguardConfiguration.
type ConfigurationPatch struct {
	Name      *string         `yaml:"name,omitempty" json:"name,omitempty"`
	Kind      *InterfaceKind  `yaml:"kind,omitempty" json:"kind,omitempty"`
	Interface *InterfacePatch `yaml:"interface,omitempty" json:"interface,omitempty"`
	SharedPSK *string         `yaml:"shared_psk,omitempty" json:"shared_psk,omitempty"`
	Path      *string         `yaml:"path,omitempty" json:"path,omitempty"`
}

// ApplyTo returns c with the patch applied. The nested interface is merged
// field by field rather than replaced.
func (p ConfigurationPatch) ApplyTo(c WireguardConfiguration) WireguardConfiguration {
	c = c.Clone()
	set(&c.Name, p.Name)
	set(&c.Kind, p.Kind)
	set(&c.SharedPSK, p.SharedPSK)
	set(&c.Path, p.Path)
	if p.Interface != nil {
		c.Interface = p.Interface.ApplyTo(c.Interface)
	}
	return c
}

// ConfigurationPatchFrom returns a patch that sets every field of c.
func ConfigurationPatchFrom(c WireguardConfiguration) ConfigurationPatch {
	c = c.Clone()
	return ConfigurationPatch{
		Name: &c.Name,
		Kind: &c.Kind,
		Interface: &InterfacePatch{
			Address:                   &c.Interface.Address,
			PrivateKey:                &c.Interface.PrivateKey,
			PublicKey:                 &c.Interface.PublicKey,
			ListenPort:                &c.Interface.ListenPort,
			PrivateKeyRetrievalMethod: &c.Interface.PrivateKeyRetrievalMethod,
			PostUp:                    &c.Interface.PostUp,
		},
		SharedPSK: &c.SharedPSK,
		Path:      &c.Path,
	}
}

// StatePatch is a partial HQState. Configuration mappings merge key by key; an
// entry for an unknown name creates that configuration from the zero value.
type StatePatch struct {
	Federation *FederationPatch              `yaml:"federation,omitempty" json:"federation,omitempty"`
	Interfaces map[string]ConfigurationPatch `yaml:"interfaces,omitempty" json:"interfaces,omitempty"`
	Forums     map[string]ConfigurationPatch `yaml:"forums,omitempty" json:"forums,omitempty"`
	PhoneLines map[string]ConfigurationPatch `yaml:"phone_lines,omitempty" json:"phone_lines,omitempty"`
}

// StatePatchForConfiguration scopes a full copy of c to {kind: {name: c}}.
func StatePatchForConfiguration(c WireguardConfiguration) StatePatch {
	var p StatePatch
	*p.configurationsRef(c.Kind) = map[string]ConfigurationPatch{c.Name: ConfigurationPatchFrom(c)}
	return p
}

// StatePatchFrom returns a patch that sets every value held by s.
func StatePatchFrom(s HQState) StatePatch {
	f := s.Federation
	p := StatePatch{
		Federation: &FederationPatch{
			Name:             &f.Name,
			InterfaceMinPort: &f.InterfaceMinPort,
			ForumMinPort:     &f.ForumMinPort,
			PhoneLineMinPort: &f.PhoneLineMinPort,
		},
	}
	for _, kind := range Kinds() {
		byName := s.Configurations(kind)
		if len(byName) == 0 {
			continue
		}
		patches := make(map[string]ConfigurationPatch, len(byName))
		for name, c := range byName {
			patches[name] = ConfigurationPatchFrom(c)
		}
		*p.configurationsRef(kind) = patches
	}
	return p
}

// Configurations returns the patch entries for kind.
func (p StatePatch) Configurations(kind InterfaceKind) map[string]ConfigurationPatch {
	switch kind {
	case KindInterface:
		return p.Interfaces
	case KindForum:
		return p.Forums
	case KindPhoneLine:
		return p.PhoneLines
	}
	return nil
}

// IsEmpty reports whether applying p would change nothing structurally.
func (p StatePatch) IsEmpty() bool {
	return p.Federation == nil && len(p.Interfaces) == 0 && len(p.Forums) == 0 && len(p.PhoneLines) == 0
}

// ApplyTo returns a new HQState with p merged over s. s is not modified.
func (p StatePatch) ApplyTo(s HQState) HQState {
	out := s.Clone()
	if p.Federation != nil {
		out.Federation = p.Federation.ApplyTo(out.Federation)
	}
	for _, kind := range Kinds() {
		byName := out.Configurations(kind)
		for name, cp := range p.Configurations(kind) {
			byName[name] = cp.ApplyTo(byName[name])
		}
	}
	return out
}

func (p *StatePatch) configurationsRef(kind InterfaceKind) *map[string]ConfigurationPatch {
	switch kind {
	case KindForum:
		return &p.Forums
	case KindPhoneLine:
		return &p.PhoneLines
	default:
		return &p.Interfaces
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
