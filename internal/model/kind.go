package model

import (
	"fmt"
	"strings"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/foundation/normalization"
)

// InterfaceKind distinguishes the federation backbone interface, forum interfaces
// and phone-line interfaces. The value doubles as the HQState mapping key and the
// --interface-kind CLI value.
type InterfaceKind string

const (
	KindInterface InterfaceKind = "interfaces"
	KindForum     InterfaceKind = "forums"
	KindPhoneLine InterfaceKind = "phone_lines"
)

// Kinds returns every interface kind in mapping order.
func Kinds() []InterfaceKind {
	return []InterfaceKind{KindInterface, KindForum, KindPhoneLine}
}

var kindNormalizer = normalization.NewNormalizer(map[string]InterfaceKind{
	"interfaces":  KindInterface,
	"interface":   KindInterface,
	"forums":      KindForum,
	"forum":       KindForum,
	"phone_lines": KindPhoneLine,
	"phone_line":  KindPhoneLine,
}, "")

// ParseInterfaceKind accepts the canonical plural form or the singular enum name
// in any case ("FORUM", "phone-line", ...).
func ParseInterfaceKind(raw string) (InterfaceKind, error) {
	kind := kindNormalizer.Normalize(raw)
	if kind == "" {
		return "", ferrors.ValidationError(fmt.Sprintf("unknown interface kind %q, valid options: %v", raw, Kinds())).
			WithContext("kind", raw).
			Build()
	}
	return kind, nil
}

// Valid reports whether k is one of the known kinds.
func (k InterfaceKind) Valid() bool {
	switch k {
	case KindInterface, KindForum, KindPhoneLine:
		return true
	}
	return false
}

// EventPrefix is the upper-case prefix used by per-kind configuration events.
func (k InterfaceKind) EventPrefix() string {
	return strings.ToUpper(string(k))
}

// PrivateKeyRetrievalMethod selects how a WireGuard interface obtains its private
// key when it is brought up.
type PrivateKeyRetrievalMethod string

const (
	// RetrievalTestInsecureCleartext writes the private key straight into the
	// rendered .conf. Only meant for tests.
	RetrievalTestInsecureCleartext PrivateKeyRetrievalMethod = "TEST_INSECURE_CLEARTEXT"
	// RetrievalEnvVarOrFile defers to `hq get-private-key`, which reads the root
	// passphrase from the environment or a file.
	RetrievalEnvVarOrFile PrivateKeyRetrievalMethod = "WG_FEDERATION_ENV_VAR_OR_FILE"
	// RetrievalCommand defers to `hq get-private-key` with a root passphrase command.
	RetrievalCommand PrivateKeyRetrievalMethod = "WG_FEDERATION_COMMAND"
)

var retrievalNormalizer = normalization.NewNormalizer(map[string]PrivateKeyRetrievalMethod{
	string(RetrievalTestInsecureCleartext): RetrievalTestInsecureCleartext,
	string(RetrievalEnvVarOrFile):          RetrievalEnvVarOrFile,
	string(RetrievalCommand):               RetrievalCommand,
}, RetrievalEnvVarOrFile)

// ParsePrivateKeyRetrievalMethod normalizes raw; empty input yields RetrievalEnvVarOrFile.
func ParsePrivateKeyRetrievalMethod(raw string) (PrivateKeyRetrievalMethod, error) {
	return retrievalNormalizer.NormalizeWithError(raw)
}

// RequiresRootPassphraseCommand reports whether get-private-key must be given
// --root-passphrase-command.
func (m PrivateKeyRetrievalMethod) RequiresRootPassphraseCommand() bool {
	return m == RetrievalCommand
}

// IsCleartext reports whether the private key is embedded in the interface definition.
func (m PrivateKeyRetrievalMethod) IsCleartext() bool {
	return m == RetrievalTestInsecureCleartext
}
