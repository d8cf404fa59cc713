package schema

// Record is an ingested row: one value per dimension and per raw measure,
// keyed by field name. It implements predicate.Record so predicates built
// against a Cube's dimensions can be evaluated directly against ingest
// input before it is encoded into a chunk.
type Record struct {
	Values map[string]any
}

// NewRecord wraps an already-populated value map.
func NewRecord(values map[string]any) Record { return Record{Values: values} }

// Get implements predicate.Record.
func (r Record) Get(dim string) (any, bool) {
	v, ok := r.Values[dim]
	return v, ok
}

// Key projects the record's values for the given ordered field list,
// producing the tuple an AggregationConfig's Keys require for a chunk's
// sort key.
func (r Record) Key(fields []string) []any {
	key := make([]any, len(fields))
	for i, f := range fields {
		key[i] = r.Values[f]
	}
	return key
}
