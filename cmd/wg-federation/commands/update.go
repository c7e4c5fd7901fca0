package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/wg-federation/wg-federation/internal/app"
	"github.com/wg-federation/wg-federation/internal/configio"
	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/model"
)

// UpdateCmd implements 'hq update'.
type UpdateCmd struct {
	Changes string `required:"" type:"path" help:"YAML or JSON file holding a partial HQ state"`
}

func (u *UpdateCmd) Run(g *Global, root *CLI) error {
	var patch model.StatePatch
	if err := loadChanges(u.Changes, &patch); err != nil {
		return err
	}
	if patch.IsEmpty() {
		return ferrors.ValidationError("changes file contains no changes").
			WithContext("path", u.Changes).
			Build()
	}

	ctx := context.Background()
	a, err := root.openApp(ctx, g, app.Options{})
	if err != nil {
		return err
	}
	defer closeApp(a)

	if _, err := a.Manager.UpdateHQState(ctx, patch); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(root.out(), "HQ state updated")
	return nil
}

// UpdateInterfaceCmd implements 'hq update-interface'.
type UpdateInterfaceCmd struct {
	InterfaceKind string `name:"interface-kind" required:"" enum:"interfaces,forums,phone_lines" help:"Configuration kind"`
	InterfaceName string `name:"interface-name" required:"" help:"Configuration name"`
	Changes       string `required:"" type:"path" help:"YAML or JSON file holding a partial configuration"`
}

func (u *UpdateInterfaceCmd) Run(g *Global, root *CLI) error {
	kind, err := model.ParseInterfaceKind(u.InterfaceKind)
	if err != nil {
		return err
	}
	var patch model.ConfigurationPatch
	if err := loadChanges(u.Changes, &patch); err != nil {
		return err
	}

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
	current, ok := st.Configuration(kind, u.InterfaceName)
	if !ok {
		return ferrors.NotFoundError("no such wireguard configuration").
			WithContext("kind", string(kind)).
			WithContext("name", u.InterfaceName).
			Build()
	}

	updated, err := a.Manager.UpdateWireguardConfiguration(ctx, patch, current)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(root.out(), "%s/%s updated\n", updated.Kind, updated.Name)
	return nil
}

func loadChanges(path string, v any) error {
	err := configio.NewCodecForPath(path).LoadPath(path, v)
	if errors.Is(err, configio.ErrEmpty) {
		return ferrors.ValidationError("changes file is empty").
			WithContext("path", path).
			Build()
	}
	if errors.Is(err, fs.ErrNotExist) {
		return ferrors.NotFoundError("changes file not found").
			WithContext("path", path).
			Build()
	}
	return err
}
