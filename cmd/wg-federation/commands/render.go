package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/wg-federation/wg-federation/internal/app"
	"github.com/wg-federation/wg-federation/internal/eventstore"
	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/model"
)

// RenderCmd implements 'hq render'.
type RenderCmd struct {
	Prune bool `help:"Remove .conf files in the managed directories that no configuration renders to"`
}

func (r *RenderCmd) Run(g *Global, root *CLI) error {
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
	paths, err := a.Renderer.WriteAll(ctx, st)
	if err != nil {
		return err
	}
	for _, p := range paths {
		_, _ = fmt.Fprintln(root.out(), p)
	}
	if !r.Prune {
		return nil
	}

	dirs := make([]string, 0, len(model.Kinds()))
	for _, kind := range model.Kinds() {
		dirs = append(dirs, a.Finder.Directory(kind))
	}
	removed, err := a.Renderer.Prune(ctx, st, dirs...)
	for _, p := range removed {
		_, _ = fmt.Fprintf(root.out(), "removed %s\n", p)
	}
	return err
}

// JournalCmd implements 'hq journal'.
type JournalCmd struct {
	Limit     int    `help:"Number of most recent events to list" default:"50"`
	Operation string `help:"List every event of one operation instead"`
}

func (j *JournalCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	a, err := root.openApp(ctx, g, app.Options{DisableForwarding: true})
	if err != nil {
		return err
	}
	defer closeApp(a)

	if a.Journal == nil {
		return ferrors.ConfigError("event journal is disabled").
			WithContext("hint", "set journal.enabled: true").
			Build()
	}

	var evts []eventstore.Event
	if j.Operation != "" {
		evts, err = a.Journal.GetByOperationID(ctx, j.Operation)
	} else {
		evts, err = a.Journal.Recent(ctx, j.Limit)
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(root.out(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tOPERATION\tEVENT\tCONFIGURATION")
	for _, e := range evts {
		target := ""
		if md := e.Metadata(); md[eventstore.MetaKind] != "" {
			target = md[eventstore.MetaKind] + "/" + md[eventstore.MetaName]
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Timestamp().Format(time.RFC3339), e.OperationID(), e.Type(), target)
	}
	return tw.Flush()
}
