package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/wg-federation/wg-federation/internal/app"
	"github.com/wg-federation/wg-federation/internal/configio"
	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/model"
)

// HQCmd groups the HQ state commands.
type HQCmd struct {
	Bootstrap       BootstrapCmd       `cmd:"" help:"Generate a new HQ state with fresh keys"`
	Show            ShowCmd            `cmd:"" help:"Print the HQ state"`
	GetPrivateKey   GetPrivateKeyCmd   `cmd:"" name:"get-private-key" help:"Print the private key of one configuration (used by PostUp)"`
	Update          UpdateCmd          `cmd:"" help:"Merge a partial HQ state into the current one"`
	UpdateInterface UpdateInterfaceCmd `cmd:"" name:"update-interface" help:"Merge changes into one WireGuard configuration"`
	Render          RenderCmd          `cmd:"" help:"Render every WireGuard configuration to disk"`
	Journal         JournalCmd         `cmd:"" help:"List journaled HQ events"`
	Watch           WatchCmd           `cmd:"" help:"Keep rendered configurations in sync and serve the admin API"`
}

// BootstrapCmd implements 'hq bootstrap'.
type BootstrapCmd struct {
	Force bool `help:"Overwrite an existing HQ state"`
}

func (b *BootstrapCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	a, err := root.openApp(ctx, g, app.Options{})
	if err != nil {
		return err
	}
	defer closeApp(a)

	path := a.Finder.State()
	switch _, err := os.Stat(path); {
	case err == nil && !b.Force:
		return ferrors.AlreadyExistsError(fmt.Sprintf("HQ state already exists: %s (use --force to overwrite)", path)).
			UserAction().
			Build()
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to stat HQ state").
			WithContext("path", path).
			Build()
	}

	st, err := a.Manager.CreateHQState(ctx)
	if err != nil {
		return err
	}

	out := root.out()
	_, _ = fmt.Fprintf(out, "HQ state written to %s\n", path)
	for _, c := range st.AllConfigurations() {
		_, _ = fmt.Fprintf(out, "  %s/%s public_key=%s listen_port=%d conf=%s\n",
			c.Kind, c.Name, c.Interface.PublicKey, c.Interface.ListenPort, c.Path)
	}
	return nil
}

// ShowCmd implements 'hq show'.
type ShowCmd struct {
	Format        string `help:"Output format" enum:"yaml,json" default:"yaml"`
	RevealSecrets bool   `name:"reveal-secrets" help:"Print private and pre-shared keys"`
}

func (s *ShowCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	a, err := root.openApp(ctx, g, app.Options{})
	if err != nil {
		return err
	}
	defer closeApp(a)

	st, err := a.Manager.Reload(ctx)
	if err != nil {
		return err
	}
	if !s.RevealSecrets {
		st = st.Redacted()
	}
	data, err := configio.Marshal(configio.Format(s.Format), st)
	if err != nil {
		return err
	}
	_, err = root.out().Write(data)
	return err
}

// GetPrivateKeyCmd implements 'hq get-private-key'. wg-quick runs it from
// PostUp, so stdout carries nothing but the key.
type GetPrivateKeyCmd struct {
	InterfaceKind         string `name:"interface-kind" required:"" enum:"interfaces,forums,phone_lines" help:"Configuration kind"`
	InterfaceName         string `name:"interface-name" required:"" help:"Configuration name"`
	RootPassphraseCommand string `name:"root-passphrase-command" help:"Command printing the root passphrase"`
}

func (p *GetPrivateKeyCmd) Run(g *Global, root *CLI) error {
	kind, err := model.ParseInterfaceKind(p.InterfaceKind)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := root.openApp(ctx, g, app.Options{
		RootPassphraseCommand: p.RootPassphraseCommand,
		DisableJournal:        true,
		DisableForwarding:     true,
	})
	if err != nil {
		return err
	}
	defer closeApp(a)

	key, err := a.PrivateKey(ctx, kind, p.InterfaceName)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(root.out(), key)
	return err
}
