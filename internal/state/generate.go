package state

import (
	"fmt"
	"strings"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/model"
)

// GenerationSettings drive CreateHQState.
type GenerationSettings struct {
	Federation            model.Federation
	RetrievalMethod       model.PrivateKeyRetrievalMethod
	RootPassphraseCommand string
	// Binary is the program name written into post-up commands.
	Binary string
}

// DefaultBinary is the companion CLI referenced by generated post-up commands.
const DefaultBinary = "wg-federation"

type configurationSeed struct {
	name    string
	address string
}

var configurationSeeds = map[model.InterfaceKind]configurationSeed{
	model.KindInterface: {name: "wg-federation0", address: "10.10.100.1/24"},
	model.KindForum:     {name: "wgf-forum0", address: "10.10.101.1/24"},
	model.KindPhoneLine: {name: "wgf-phoneline0", address: "10.10.102.1/24"},
}

// generateConfiguration builds the bootstrap configuration of kind with fresh keys.
func (m *Manager) generateConfiguration(kind model.InterfaceKind) (model.WireguardConfiguration, error) {
	seed, ok := configurationSeeds[kind]
	if !ok {
		return model.WireguardConfiguration{}, ferrors.InternalError("no bootstrap seed for interface kind").
			WithContext("kind", string(kind)).
			Build()
	}

	pair, err := m.keys.KeyPair()
	if err != nil {
		return model.WireguardConfiguration{}, err
	}
	psk, err := m.keys.PresharedKey()
	if err != nil {
		return model.WireguardConfiguration{}, err
	}
	postUp, err := PostUp(m.settings, kind, seed.name)
	if err != nil {
		return model.WireguardConfiguration{}, err
	}

	iface := model.WireguardInterface{
		Address:                   []string{seed.address},
		PrivateKey:                pair.PrivateKey,
		PublicKey:                 pair.PublicKey,
		PrivateKeyRetrievalMethod: m.settings.RetrievalMethod,
		PostUp:                    postUp,
	}
	// Phone lines dial out and never listen.
	if kind != model.KindPhoneLine {
		iface.ListenPort = m.settings.Federation.MinPort(kind)
	}

	return model.WireguardConfiguration{
		Name:      seed.name,
		Kind:      kind,
		Interface: iface,
		SharedPSK: psk,
		Path:      m.finder.ConfigurationPath(kind, seed.name),
	}, nil
}

// PostUp returns the post-up commands for a configuration. Cleartext retrieval
// embeds the key in the interface, so there is nothing to run.
func PostUp(settings GenerationSettings, kind model.InterfaceKind, name string) ([]string, error) {
	if settings.RetrievalMethod.IsCleartext() {
		return []string{}, nil
	}

	binary := settings.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	var b strings.Builder
	fmt.Fprintf(&b, "wg set %%i private-key <(%s hq get-private-key --interface-kind %s --interface-name %s",
		binary, kind, name)
	if settings.RetrievalMethod.RequiresRootPassphraseCommand() {
		if strings.TrimSpace(settings.RootPassphraseCommand) == "" {
			return nil, ferrors.ConfigError("private key retrieval method " + string(settings.RetrievalMethod) +
				" requires a root passphrase command").Build()
		}
		if strings.Contains(settings.RootPassphraseCommand, "#") {
			// wg-quick cuts every config line at the first '#', quotes or not.
			return nil, ferrors.ConfigError("root passphrase command must not contain '#'").
				WithContext("command", settings.RootPassphraseCommand).
				Build()
		}
		fmt.Fprintf(&b, " --root-passphrase-command %s", shellDoubleQuote(settings.RootPassphraseCommand))
	}
	b.WriteString(")")
	return []string{b.String()}, nil
}

var shellEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "`", "\\`")

func shellDoubleQuote(s string) string {
	return `"` + shellEscaper.Replace(s) + `"`
}
