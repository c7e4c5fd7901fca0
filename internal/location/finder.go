// Package location resolves where wg-federation keeps its files.
package location

import (
	"path/filepath"

	"github.com/wg-federation/wg-federation/internal/configio"
	"github.com/wg-federation/wg-federation/internal/model"
)

// Finder resolves the state file and the per-kind WireGuard directories.
type Finder struct {
	dataDir      string
	wireguardDir string
	stateFormat  configio.Format
}

// NewFinder returns a Finder rooted at dataDir and wireguardDir. The state file
// extension follows stateFormat, defaulting to YAML.
func NewFinder(dataDir, wireguardDir string, stateFormat configio.Format) *Finder {
	if stateFormat != configio.FormatJSON {
		stateFormat = configio.FormatYAML
	}
	return &Finder{dataDir: dataDir, wireguardDir: wireguardDir, stateFormat: stateFormat}
}

// State is the HQ state file.
func (f *Finder) State() string {
	return filepath.Join(f.dataDir, "state."+string(f.stateFormat))
}

// DataDir is the directory holding the state file and the journal.
func (f *Finder) DataDir() string { return f.dataDir }

func (f *Finder) InterfacesDirectory() string { return f.Directory(model.KindInterface) }
func (f *Finder) ForumsDirectory() string     { return f.Directory(model.KindForum) }
func (f *Finder) PhoneLinesDirectory() string { return f.Directory(model.KindPhoneLine) }

// Directory is where rendered .conf files of kind live.
func (f *Finder) Directory(kind model.InterfaceKind) string {
	return filepath.Join(f.wireguardDir, string(kind))
}

// ConfigurationPath is <Directory(kind)>/<name>.conf.
func (f *Finder) ConfigurationPath(kind model.InterfaceKind, name string) string {
	return filepath.Join(f.Directory(kind), name+".conf")
}
