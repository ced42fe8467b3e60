package badger

// Stores bundles the BadgerDB-backed stores sharing one backend.
type Stores struct {
	Backend *Backend
	Vectors *VectorStore
	Runs    *RunStore
	Steps   *StepStore
}

// Close closes the shared backend.
func (s *Stores) Close() error {
	return s.Backend.Close()
}

// NewStores creates all stores on an open backend.
func NewStores(backend *Backend) (*Stores, error) {
	vectors, err := NewVectorStore(backend)
	if err != nil {
		return nil, err
	}
	return &Stores{
		Backend: backend,
		Vectors: vectors,
		Runs:    NewRunStore(backend),
		Steps:   NewStepStore(backend),
	}, nil
}

// NewMemoryStores creates in-memory stores for testing.
// Caller must close the returned Stores when done.
func NewMemoryStores() (*Stores, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	stores, err := NewStores(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return stores, nil
}
