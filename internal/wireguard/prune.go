package wireguard

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/logfields"
	"github.com/wg-federation/wg-federation/internal/model"
	"github.com/wg-federation/wg-federation/internal/util/sets"
)

// Stale lists the .conf files under dirs that no configuration of st renders
// to, e.g. files left behind after a configuration moved. Missing dirs are skipped.
func Stale(st model.HQState, dirs ...string) ([]string, error) {
	rendered := sets.New[string]()
	for _, c := range st.AllConfigurations() {
		rendered.Add(filepath.Clean(c.Path))
	}

	stale := sets.New[string]()
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to list configuration directory").
				WithContext("path", dir).
				Build()
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".conf" {
				continue
			}
			p := filepath.Join(filepath.Clean(dir), e.Name())
			if !rendered.Has(p) {
				stale.Add(p)
			}
		}
	}
	return sets.Sorted(stale), nil
}

// Prune removes the files Stale reports and returns their paths.
func (r *Renderer) Prune(ctx context.Context, st model.HQState, dirs ...string) ([]string, error) {
	stale, err := Stale(st, dirs...)
	if err != nil {
		return nil, err
	}
	removed := make([]string, 0, len(stale))
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to remove stale configuration").
				WithContext("path", p).
				Build()
		}
		r.logger.InfoContext(ctx, "Removed stale WireGuard configuration", logfields.Path(p))
		removed = append(removed, p)
	}
	return removed, nil
}
