// Package wireguard renders HQ configurations into wg-quick .conf files.
package wireguard

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/wg-federation/wg-federation/internal/configio"
	"github.com/wg-federation/wg-federation/internal/events"
	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/logfields"
	"github.com/wg-federation/wg-federation/internal/model"
)

const confTemplate = `# Managed by wg-federation. Local edits are overwritten.
# {{.Kind}}/{{.Name}}
[Interface]
{{- range .Interface.Address}}
Address = {{.}}
{{- end}}
{{- if .Interface.ListenPort}}
ListenPort = {{.Interface.ListenPort}}
{{- end}}
{{- if .Cleartext}}
PrivateKey = {{.Interface.PrivateKey}}
{{- end}}
{{- range .Interface.PostUp}}
PostUp = {{.}}
{{- end}}
`

var confTmpl = template.Must(template.New("wg-conf").Parse(confTemplate))

type confView struct {
	model.WireguardConfiguration
	Cleartext bool
}

// Render returns the .conf document for c. The private key is only written
// out for cleartext retrieval; every other method relies on PostUp.
func Render(c model.WireguardConfiguration) ([]byte, error) {
	if err := validate(c); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	view := confView{WireguardConfiguration: c, Cleartext: c.Interface.PrivateKeyRetrievalMethod.IsCleartext()}
	if err := confTmpl.Execute(&buf, view); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to render WireGuard configuration").
			WithContext("name", c.Name).
			Build()
	}
	return buf.Bytes(), nil
}

func validate(c model.WireguardConfiguration) error {
	if err := c.Validate(string(c.Kind) + "." + c.Name).ToError(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Path) == "" {
		return ferrors.ValidationError("configuration has no path").WithContext("name", c.Name).Build()
	}
	if len(c.Interface.Address) == 0 {
		return ferrors.ValidationError("configuration has no address").WithContext("name", c.Name).Build()
	}
	if c.Interface.PrivateKeyRetrievalMethod.IsCleartext() && strings.TrimSpace(c.Interface.PrivateKey) == "" {
		return ferrors.ValidationError("cleartext retrieval requires a private key").WithContext("name", c.Name).Build()
	}
	for _, line := range c.Interface.PostUp {
		if strings.ContainsAny(line, "\r\n") {
			return ferrors.ValidationError("post-up command spans multiple lines").WithContext("name", c.Name).Build()
		}
	}
	return nil
}

// Renderer writes rendered configurations to their Path.
type Renderer struct {
	logger *slog.Logger
}

// NewRenderer returns a Renderer. A nil logger uses slog.Default.
func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{logger: logger}
}

// Write renders c and atomically replaces the file at c.Path.
func (r *Renderer) Write(ctx context.Context, c model.WireguardConfiguration) error {
	data, err := Render(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o700); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create configuration directory").
			WithContext("path", c.Path).
			Build()
	}
	if err := configio.WriteFileAtomic(c.Path, data, 0o600); err != nil {
		return err
	}
	r.logger.DebugContext(ctx, "Rendered WireGuard configuration",
		logfields.InterfaceKind(string(c.Kind)),
		logfields.InterfaceName(c.Name),
		logfields.Path(c.Path))
	return nil
}

// WriteAll renders every configuration of st and returns the written paths.
func (r *Renderer) WriteAll(ctx context.Context, st model.HQState) ([]string, error) {
	all := st.AllConfigurations()
	paths := make([]string, 0, len(all))
	for _, c := range all {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		if err := r.Write(ctx, c); err != nil {
			return paths, err
		}
		paths = append(paths, c.Path)
	}
	return paths, nil
}

// Subscribe re-renders a configuration whenever it is created or updated.
// The returned func removes the subscriptions.
func (r *Renderer) Subscribe(d *events.Dispatcher) func() {
	var unsubscribe []func()
	for _, kind := range model.Kinds() {
		for _, phase := range []events.Phase{events.PhaseCreated, events.PhaseUpdated} {
			evt, err := events.ConfigurationEvent(kind, phase)
			if err != nil {
				continue
			}
			unsubscribe = append(unsubscribe, d.Subscribe(evt, r.handle))
		}
	}
	return func() {
		for _, u := range unsubscribe {
			u()
		}
	}
}

func (r *Renderer) handle(ctx context.Context, _ events.Event, payload any) (any, error) {
	c, ok := payload.(model.WireguardConfiguration)
	if !ok {
		return nil, ferrors.InternalError("unexpected payload for configuration event").Build()
	}
	return nil, r.Write(ctx, c)
}
