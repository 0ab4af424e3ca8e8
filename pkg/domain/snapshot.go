package domain

// HeaderPair is a single header name/value pair in arrival order.
type HeaderPair struct {
	Name  string
	Value string
}

// QueryPair is a single query key/value pair in arrival order.
type QueryPair struct {
	Key   string
	Value string
}

// BodyField is one string leaf extracted from the request body. Name is the
// dotted path of the field inside the parsed document ("description",
// "meta.notes", "tags[2]"). Opaque marks fields carrying raw, unparsed bytes.
type BodyField struct {
	Name   string
	Value  string
	Opaque bool
}

// Snapshot is the immutable view of an inbound request handed to the
// validators. It is constructed once per request and never mutated; two
// validations of the same Snapshot always yield the same Verdict.
type Snapshot struct {
	Method  string
	Path    string
	Headers []HeaderPair
	Query   []QueryPair
	Body    []BodyField

	// BodyBytes is the total size of the raw body before parsing.
	BodyBytes int64
}
