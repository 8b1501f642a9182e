package persistence

// Persistence bundles the store interfaces so the orchestrator and worker
// can depend on a single abstraction.
type Persistence struct {
	Jobs     JobStore
	Messages MessageStore
	Details  ExecutionDetailStore
}

// NewInMemoryPersistence returns a Persistence backed by one InMemoryStore.
func NewInMemoryPersistence() Persistence {
	s := NewInMemoryStore()
	return Persistence{Jobs: s, Messages: s, Details: s}
}
