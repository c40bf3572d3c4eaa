package fan

// Query is the read-only view of the Store served to the API layer.
type Query struct {
	store *Store
}

// NewQuery wraps store.
func NewQuery(store *Store) *Query {
	return &Query{store: store}
}

// Snapshot returns a copy of the current device state.
func (q *Query) Snapshot() DeviceState {
	return q.store.Read()
}
