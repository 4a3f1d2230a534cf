package record

// Record describes one live entity observed on the host: an operating
// system process annotated with the network ports it is listening on.
// Records are immutable once produced by a source.
type Record struct {
	// ID is the unique key of the record within a snapshot, the
	// stringified PID for the system source.
	ID string `json:"id"`
	// Name is the entity name, e.g. the executable name.
	Name string `json:"name"`
	// Owner is the user the entity belongs to. May be empty when the
	// source could not resolve it.
	Owner string `json:"owner"`
	// Ports holds the listening ports as decimal strings, deduplicated
	// and numerically sorted. May be empty.
	Ports []string `json:"ports,omitempty"`
	// Detail is an opaque payload (the full command line). It is never
	// indexed and never matched by searches.
	Detail string `json:"detail,omitempty"`
}
