package configio

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
)

// ErrEmpty is returned when there is nothing to decode. It matches
// fs.ErrNotExist: an empty state file is one whose creation never completed.
var ErrEmpty = ferrors.WrapError(fs.ErrNotExist, ferrors.CategoryState, "file is empty").Build()

// Transformer wraps encoded bytes on save and unwraps them on load.
type Transformer interface {
	Name() string
	Encode(plain []byte) ([]byte, error)
	Decode(wrapped []byte) ([]byte, error)
}

// Loader reads structured data from a locked file handle.
type Loader interface {
	Load(f *os.File, v any) error
}

// Saver writes structured data through a locked file handle.
type Saver interface {
	Save(f *os.File, v any) error
}

// Codec is a Loader and Saver for one format and transformer chain.
// Transformers apply in order on save and in reverse order on load.
type Codec struct {
	format       Format
	transformers []Transformer
}

// NewCodec returns a Codec for format. An empty format sniffs on load and writes YAML.
func NewCodec(format Format, transformers ...Transformer) *Codec {
	return &Codec{format: format, transformers: transformers}
}

// NewCodecForPath infers the format from the path extension.
func NewCodecForPath(path string, transformers ...Transformer) *Codec {
	return NewCodec(FormatForPath(path), transformers...)
}

// Format returns the configured format, "" when sniffing.
func (c *Codec) Format() Format { return c.format }

// Load reads f from the start and decodes it into v.
func (c *Codec) Load(f *os.File, v any) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fileError(err, f.Name(), "failed to rewind file")
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return fileError(err, f.Name(), "failed to read file")
	}
	return c.Decode(data, v)
}

// LoadPath reads path and decodes it into v. A missing file is returned unwrapped.
func (c *Codec) LoadPath(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.Decode(data, v)
}

// Decode unwraps data through the transformer chain and decodes it into v.
func (c *Codec) Decode(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmpty
	}
	for i := len(c.transformers) - 1; i >= 0; i-- {
		var err error
		if data, err = c.transformers[i].Decode(data); err != nil {
			return err
		}
	}
	return Unmarshal(c.format, data, v)
}

// Encode serializes v and wraps it through the transformer chain.
func (c *Codec) Encode(v any) ([]byte, error) {
	data, err := Marshal(c.format, v)
	if err != nil {
		return nil, err
	}
	for _, t := range c.transformers {
		if data, err = t.Encode(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Save replaces the content of f with the encoding of v and syncs it.
// Encoding happens before the file is touched, so an encode failure leaves it
// intact. The new bytes are written over the old ones before the tail is cut,
// so the file is never empty mid-save.
func (c *Codec) Save(f *os.File, v any) error {
	data, err := c.Encode(v)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return fileError(err, f.Name(), "failed to write file")
	}
	if err := f.Truncate(int64(len(data))); err != nil {
		return fileError(err, f.Name(), "failed to truncate file")
	}
	if err := f.Sync(); err != nil {
		return fileError(err, f.Name(), "failed to sync file")
	}
	return nil
}

// SavePath atomically replaces path with the encoding of v using a temporary
// file in the same directory.
func (c *Codec) SavePath(path string, v any, perm os.FileMode) error {
	data, err := c.Encode(v)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, perm)
}

// WriteFileAtomic writes data to a temporary sibling of path and renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fileError(err, dir, "failed to create directory")
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fileError(err, path, "failed to create temporary file")
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fileError(err, tmpPath, "failed to write temporary file")
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fileError(err, tmpPath, "failed to set permissions")
	}
	if err := tmp.Close(); err != nil {
		return fileError(err, tmpPath, "failed to close temporary file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fileError(err, path, "failed to replace file")
	}
	return nil
}

func fileError(err error, path, msg string) error {
	return ferrors.WrapError(err, ferrors.CategoryFileSystem, msg).
		WithContext("path", path).
		Build()
}
