package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/yeka/zip"
)

// ErrNoInputFiles is returned when packaging is requested with nothing
// to package.
var ErrNoInputFiles = errors.New("no files to package")

// Packager writes produced files into a single ZIP archive, AES-256
// encrypted when a password is supplied.
type Packager struct {
	create func(name string) (*os.File, error)
	open   func(name string) (*os.File, error)
}

// NewPackager constructs a packager with real OS dependencies.
func NewPackager() *Packager {
	return &Packager{
		create: os.Create,
		open:   os.Open,
	}
}

// Pack writes one archive entry per input file, named after the file's
// base name. onEntry, when set, is invoked after each stored entry with
// the number of entries written so far and the total. Cancellation is
// checked between entries; a partial archive is removed before
// returning.
func (p *Packager) Pack(ctx context.Context, zipPath string, files []string, password string, onEntry func(done, total int)) error {
	if len(files) == 0 {
		return ErrNoInputFiles
	}

	out, err := p.create(zipPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	writer := zip.NewWriter(out)
	if err := p.writeEntries(ctx, writer, files, password, onEntry); err != nil {
		_ = writer.Close()
		_ = out.Close()
		_ = os.Remove(zipPath)
		return err
	}

	if err := writer.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(zipPath)
		return fmt.Errorf("finalize archive: %w", err)
	}
	return out.Close()
}

// writeEntries streams every file into the archive.
func (p *Packager) writeEntries(ctx context.Context, writer *zip.Writer, files []string, password string, onEntry func(done, total int)) error {
	total := len(files)
	for i, filePath := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := filepath.Base(filePath)

		var entry io.Writer
		var err error
		if password != "" {
			entry, err = writer.Encrypt(name, password, zip.AES256Encryption)
		} else {
			entry, err = writer.Create(name)
		}
		if err != nil {
			return fmt.Errorf("create archive entry %s: %w", name, err)
		}

		if err := p.copyFile(entry, filePath); err != nil {
			return fmt.Errorf("store %s: %w", name, err)
		}

		if onEntry != nil {
			onEntry(i+1, total)
		}
	}
	return nil
}

// copyFile streams one source file into an archive entry writer.
func (p *Packager) copyFile(dst io.Writer, srcPath string) error {
	src, err := p.open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(dst, src)
	return err
}
