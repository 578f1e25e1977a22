package codec

// Codec marshals values for transport and storage
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content types to codecs
type Registry struct {
	byType map[string]Codec
}

// NewRegistry returns a registry holding the JSON codec. CBOR is added with
// Register since building it can fail.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	return r
}

// Register adds a codec, replacing any codec with the same content type
func (r *Registry) Register(c Codec) {
	r.byType[c.ContentType()] = c
}

// Get returns a codec by content type, or nil
func (r *Registry) Get(contentType string) Codec {
	return r.byType[contentType]
}
