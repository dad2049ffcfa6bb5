package ext4

import (
	"fmt"
	"strings"
)

// stagingEntry is one name in a staged directory: either a file (inode
// number already assigned) or a subdirectory (inode assigned on Finalize).
type stagingEntry struct {
	name      string
	fileInode uint32
	dir       *stagingDir
	// dirInode is filled in during the finalize walk
	dirInode uint32
}

// stagingDir is an ordered list of named children. Order is preserved so
// directory entries are emitted in insertion order.
type stagingDir struct {
	entries []*stagingEntry
}

// splitPath splits on '/' and drops empty components, so "/a//b/" is
// {"a", "b"}.
func splitPath(path string) []string {
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func (d *stagingDir) child(name string) *stagingEntry {
	for _, e := range d.entries {
		if e.name == name {
			return e
		}
	}
	return nil
}

// get walks the tree to the entry at path, or nil if any component is
// missing or a file occurs mid-path.
func (d *stagingDir) get(path string) *stagingEntry {
	parts := splitPath(path)
	current := d
	for i, part := range parts {
		e := current.child(part)
		if e == nil {
			return nil
		}
		if i == len(parts)-1 {
			return e
		}
		if e.dir == nil {
			return nil
		}
		current = e.dir
	}
	return nil
}

// prepareCreate validates that path can be created and returns the parent
// directory plus the final component name. Nothing is inserted.
func (d *stagingDir) prepareCreate(path string) (*stagingDir, string, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, "", fmt.Errorf("path %q has no name components", path)
	}
	name := parts[len(parts)-1]
	if len(name) > maxNameLength {
		return nil, "", fmt.Errorf("%q: %w", name, ErrNameTooLong)
	}
	current := d
	for _, part := range parts[:len(parts)-1] {
		e := current.child(part)
		if e == nil {
			return nil, "", fmt.Errorf("%q: %w", path, ErrParentMissing)
		}
		if e.dir == nil {
			return nil, "", fmt.Errorf("%q: %w", path, ErrParentIsFile)
		}
		current = e.dir
	}
	if current.child(name) != nil {
		return nil, "", fmt.Errorf("%q: %w", path, ErrPathExists)
	}
	return current, name, nil
}

// mkdir stages a new directory at path; the parent must exist.
func (d *stagingDir) mkdir(path string) (*stagingDir, error) {
	parent, name, err := d.prepareCreate(path)
	if err != nil {
		return nil, err
	}
	sub := &stagingDir{}
	parent.entries = append(parent.entries, &stagingEntry{name: name, dir: sub})
	return sub, nil
}

// mkdirAll stages a new directory at path, creating missing parents. The
// final component itself must not already exist.
func (d *stagingDir) mkdirAll(path string) (*stagingDir, error) {
	parts := splitPath(path)
	for i := 0; i < len(parts)-1; i++ {
		subPath := strings.Join(parts[:i+1], "/")
		if d.get(subPath) == nil {
			if _, err := d.mkdir(subPath); err != nil {
				return nil, err
			}
		}
	}
	return d.mkdir(path)
}
