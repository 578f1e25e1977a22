package domain

// PayloadType tells the codec which schema the bytes follow
type PayloadType string

const (
	PayloadTypeJobConf    PayloadType = "JOB_CONF"
	PayloadTypeWork       PayloadType = "SPARK_WORK"
	PayloadTypeScratchDir PayloadType = "SCRATCH_DIR"
	PayloadTypeResult     PayloadType = "RESULT"
)

// Payload is an opaque serialized value plus the tag needed to decode it.
// Ref is set instead of Data when the bytes were offloaded to a payload store.
type Payload struct {
	Type PayloadType `json:"type"`
	Data []byte      `json:"data,omitempty"`
	Ref  string      `json:"ref,omitempty"`
}

// IsRef reports whether the payload must be resolved before decoding
func (p Payload) IsRef() bool {
	return p.Ref != "" && len(p.Data) == 0
}

// Size returns the inline byte size
func (p Payload) Size() int {
	return len(p.Data)
}

// ScratchDir is the location handle produced by the storage layer
type ScratchDir struct {
	Path string `cbor:"path" json:"path"`
}
