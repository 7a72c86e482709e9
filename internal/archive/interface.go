package archive

// Archiver persists raw snapshots: enriched mention batches and decision
// audit trails. Not the system of record; the repository is.
type Archiver interface {
	Store(filename string, data []byte) error
	Retrieve(filename string) ([]byte, error)
	List(prefix string) ([]string, error)
	Delete(filename string) error
}
