package index

// NoteIndex is the catalog surface the note service reads from.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string, links []string) error
	DeleteNote(id string) error
	GetChecksum(id string) (string, error)
	GetNote(id string) (*NoteRow, error)
	ListNotes(q ListQuery) ([]NoteRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Graph() ([]GraphNode, []GraphLink, error)
	Backlinks(target string) ([]string, error)
	Outlinks(source string) ([]string, error)
	DanglingLinks() ([]DanglingLink, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

var _ NoteIndex = (*DB)(nil)
