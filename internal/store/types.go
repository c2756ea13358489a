package store

import "time"

// RepoStatus tracks where a repository is in its indexing lifecycle.
type RepoStatus string

const (
	StatusPending  RepoStatus = "pending"
	StatusIndexing RepoStatus = "indexing"
	StatusReady    RepoStatus = "ready"
	StatusError    RepoStatus = "error"
)

// SourceKind distinguishes locally added trees from remote clones.
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// Repository is one indexed root.
type Repository struct {
	ID             int64
	Name           string
	Path           string
	Status         RepoStatus
	Source         SourceKind
	Vault          string
	RemoteURL      string
	RemoteBranch   string
	Shallow        bool
	FileCount      int64
	TotalSizeBytes int64
	CreatedAt      time.Time
	LastIndexedAt  *time.Time
	LastSyncedAt   *time.Time
	LastError      string
}

// File is one indexed text unit within a repository.
type File struct {
	ID        int64
	RepoID    int64
	RepoName  string
	RelPath   string
	Size      int64
	ModTime   int64
	Hash      string
	FileType  string
	IndexedAt int64
}

// FileInfo is the snapshot entry used by the incremental diff: enough to
// decide unchanged/suspect/changed without touching content.
type FileInfo struct {
	ID      int64
	Size    int64
	ModTime int64
	Hash    string
}

// ChunkRecord is one embedding chunk prepared for storage. Offsets are byte
// positions into the file's normalized text.
type ChunkRecord struct {
	Index  int
	Start  int
	End    int
	Text   string
	Vector []float32
}

// FileRecord is the unit handed to the writer: everything needed to upsert
// a file row, its content row, markdown metadata, and embedding chunks in
// one transaction.
type FileRecord struct {
	RepoID   int64
	RelPath  string
	Size     int64
	ModTime  int64
	Hash     string
	FileType string
	Content  string

	// Markdown-only fields; empty for other file types.
	Title    string
	Tags     []string
	Links    []string
	Headings []string

	// Embedding chunks; empty when semantic search is disabled.
	Chunks []ChunkRecord
	Model  string
}

// SearchResult is one lexical search hit. Score is the negated BM25 rank,
// so higher means more relevant.
type SearchResult struct {
	FileID   int64
	RepoID   int64
	RepoName string
	RelPath  string
	FileType string
	Score    float64
	Snippet  string
}

// VectorHit is one semantic search hit at chunk granularity.
type VectorHit struct {
	ChunkID    int64
	FileID     int64
	RepoName   string
	RelPath    string
	FileType   string
	ChunkIndex int
	ChunkText  string
	Score      float64
}

// Filters narrows a search. Zero values mean "no constraint"; all set
// fields apply conjunctively.
type Filters struct {
	// Repo matches repository names by substring.
	Repo string
	// FileType matches the classifier's type tag exactly.
	FileType string
	// Extension matches the path suffix; a missing leading dot is added.
	Extension string
	// PathGlob applies a glob over the relative path.
	PathGlob string
	// Tag requires a markdown tag.
	Tag string
}

// TagCount is one entry of the tag frequency listing.
type TagCount struct {
	Tag   string
	Count int
}

// LinkEdge is one wiki-link edge: the linking file and the target stem it
// references.
type LinkEdge struct {
	SourcePath string
	SourceRepo string
	TargetStem string
}

// OrphanFile is a markdown file no other file links to.
type OrphanFile struct {
	RelPath  string
	RepoName string
}

// Stats summarizes the whole store.
type Stats struct {
	Repositories  int
	Files         int
	FilesByType   map[string]int
	Tags          int
	Links         int
	EmbeddedFiles int
	Chunks        int
	DBSizeBytes   int64
	SchemaVersion int
}
