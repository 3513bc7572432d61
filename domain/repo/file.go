package repo

// MaxFileBytes is the largest file content ever materialized. Anything
// larger is treated as binary/huge and skipped during indexing.
const MaxFileBytes = 256 * 1024

// PlaceholderContent is stored for files whose content fetch failed during
// bulk indexing. The file still appears in the tree and the index so a
// single unreachable blob never aborts a run.
const PlaceholderContent = "// Content unavailable"

// NodeKind distinguishes files from folders in listings and trees.
type NodeKind string

// NodeKind values.
const (
	KindFile   NodeKind = "file"
	KindFolder NodeKind = "folder"
)

// File is one indexed file, exclusively owned by its repository. The
// (repoID, path) pair uniquely identifies it.
type File struct {
	id       int64
	repoID   int64
	path     string
	content  string
	size     int
	language string
	kind     NodeKind
}

// NewFile creates a File for the given repository and path.
func NewFile(repoID int64, path, content string, size int, language string) File {
	return File{
		repoID:   repoID,
		path:     path,
		content:  content,
		size:     size,
		language: language,
		kind:     KindFile,
	}
}

// ReconstructFile rebuilds a File from persisted state.
func ReconstructFile(id, repoID int64, path, content string, size int, language string, kind NodeKind) File {
	return File{
		id:       id,
		repoID:   repoID,
		path:     path,
		content:  content,
		size:     size,
		language: language,
		kind:     kind,
	}
}

// ID returns the database identifier (0 if not yet persisted).
func (f File) ID() int64 { return f.id }

// RepoID returns the owning repository identifier.
func (f File) RepoID() int64 { return f.repoID }

// Path returns the POSIX-style path within the repository.
func (f File) Path() string { return f.path }

// Content returns the file text (possibly the placeholder).
func (f File) Content() string { return f.content }

// Size returns the content size in bytes as reported by the host.
func (f File) Size() int { return f.size }

// Language returns the language derived from the file extension.
func (f File) Language() string { return f.language }

// Kind returns whether this record is a file or a folder.
func (f File) Kind() NodeKind { return f.kind }

// HasContent reports whether real content (not the placeholder) is cached.
func (f File) HasContent() bool {
	return f.content != "" && f.content != PlaceholderContent
}

// WithContent returns a copy with content and size applied.
func (f File) WithContent(content string, size int) File {
	f.content = content
	f.size = size
	return f
}
