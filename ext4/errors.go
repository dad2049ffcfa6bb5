package ext4

import "errors"

var (
	// ErrPathExists is returned when creating a path that is already staged.
	ErrPathExists = errors.New("path already exists")
	// ErrParentMissing is returned when a parent directory of the given path
	// has not been created.
	ErrParentMissing = errors.New("parent directory does not exist")
	// ErrParentIsFile is returned when a non-final path component names a
	// file.
	ErrParentIsFile = errors.New("parent is a file, not a directory")
	// ErrNameTooLong is returned for path components longer than 255 bytes.
	ErrNameTooLong = errors.New("name is longer than 255 bytes")
	// ErrTooManyBlockGroups is returned from Finalize when the image needs
	// more block groups than the descriptor space reserved for maxSize can
	// describe. The caller must reconstruct the writer with a larger maxSize.
	ErrTooManyBlockGroups = errors.New("too many block groups for the declared maximum size")
	// ErrInlineOverflow is returned when an inline payload cannot fit the
	// space available inside an inode.
	ErrInlineOverflow = errors.New("inline payload does not fit in the inode")
	// ErrFinalized is returned when a Writer is used after Finalize.
	ErrFinalized = errors.New("writer is already finalized")
)
