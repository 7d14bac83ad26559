package resource

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// writeFile stores a single-file resource. Content is written next to the
// target and renamed into place, so a partial download is never seen as synced.
func writeFile(r io.Reader, target string, perm uint32, hasPerm bool) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".fetch-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	mode := os.FileMode(0o644)
	if hasPerm {
		mode = fileMode(perm)
	}
	// os.Chmod instead of the create mode: the umask must not apply
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}

	if err := os.RemoveAll(target); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// extractArchive explodes a gzip-compressed tar stream into target.
// Each entry replaces whatever already exists at its path. Extraction happens
// in a staging directory that is renamed to target once complete.
func extractArchive(r io.Reader, target string) error {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(parent, ".extract-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	zr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		if err := extractEntry(tr, hdr, staging); err != nil {
			return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
		}
	}

	if err := os.Chmod(staging, 0o755); err != nil {
		return err
	}
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	return os.Rename(staging, target)
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, root string) error {
	name := filepath.Clean(filepath.FromSlash(hdr.Name))
	if name == "." {
		return nil
	}
	if filepath.IsAbs(name) || escapes(name) {
		return fmt.Errorf("entry escapes archive root")
	}
	// Entries must not be written through a link extracted earlier
	if through, err := crossesSymlink(root, name); err != nil {
		return err
	} else if through {
		return fmt.Errorf("entry path crosses a symlink")
	}
	path := filepath.Join(root, name)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if info, err := os.Lstat(path); err == nil && !info.IsDir() {
			if err := os.Remove(path); err != nil {
				return err
			}
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}
		return os.Chmod(path, hdr.FileInfo().Mode().Perm()|0o700)

	case tar.TypeReg:
		if err := os.RemoveAll(path); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		return os.Chmod(path, hdr.FileInfo().Mode().Perm())

	case tar.TypeSymlink:
		link := filepath.FromSlash(hdr.Linkname)
		if filepath.IsAbs(link) || escapes(filepath.Join(filepath.Dir(name), link)) {
			return fmt.Errorf("link target %q escapes archive root", hdr.Linkname)
		}
		if err := os.RemoveAll(path); err != nil {
			return err
		}
		return os.Symlink(link, path)

	default:
		// devices, fifos and hard links have no place in a resource bundle
		return nil
	}
}

// escapes reports whether a cleaned relative path leaves its root
func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// crossesSymlink reports whether an existing parent directory of name under
// root is a symlink
func crossesSymlink(root, name string) (bool, error) {
	dir := root
	for _, part := range strings.Split(filepath.Dir(name), string(filepath.Separator)) {
		if part == "." {
			continue
		}
		dir = filepath.Join(dir, part)
		info, err := os.Lstat(dir)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return true, nil
		}
	}
	return false, nil
}

// unixMode returns the low four octal digits of a file mode
func unixMode(m os.FileMode) uint32 {
	mode := uint32(m.Perm())
	if m&os.ModeSetuid != 0 {
		mode |= 0o4000
	}
	if m&os.ModeSetgid != 0 {
		mode |= 0o2000
	}
	if m&os.ModeSticky != 0 {
		mode |= 0o1000
	}
	return mode
}

// fileMode is the inverse of unixMode
func fileMode(mode uint32) os.FileMode {
	m := os.FileMode(mode & 0o777)
	if mode&0o4000 != 0 {
		m |= os.ModeSetuid
	}
	if mode&0o2000 != 0 {
		m |= os.ModeSetgid
	}
	if mode&0o1000 != 0 {
		m |= os.ModeSticky
	}
	return m
}
