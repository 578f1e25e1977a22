package codec

import (
	"errors"
	"fmt"

	"github.com/vishnukl-alation/hive/internal/domain"
	"github.com/vishnukl-alation/hive/internal/static/errs"
)

var (
	errTypeMismatch  = errors.New("payload type mismatch")
	errUnresolvedRef = errors.New("payload reference not resolved")
	errEmptyPayload  = errors.New("empty payload")
)

// PayloadCodec turns structured values into tagged payloads and back
type PayloadCodec struct {
	codec Codec
}

// NewPayloadCodec wraps the given codec
func NewPayloadCodec(c Codec) *PayloadCodec {
	return &PayloadCodec{codec: c}
}

// NewDefaultPayloadCodec returns the CBOR payload codec used on both sides of the channel
func NewDefaultPayloadCodec() (*PayloadCodec, error) {
	c, err := CBOR()
	if err != nil {
		return nil, fmt.Errorf("failed to build cbor codec: %w", err)
	}
	return NewPayloadCodec(c), nil
}

// ContentType returns the content type of the underlying codec
func (p *PayloadCodec) ContentType() string {
	return p.codec.ContentType()
}

// Serialize encodes value as a payload of the given type
func (p *PayloadCodec) Serialize(payloadType domain.PayloadType, value any) (domain.Payload, error) {
	data, err := p.codec.Marshal(value)
	if err != nil {
		return domain.Payload{}, &errs.CodecError{PayloadType: string(payloadType), Err: err}
	}
	return domain.Payload{Type: payloadType, Data: data}, nil
}

// Deserialize decodes payload into out after checking it carries the expected type
func (p *PayloadCodec) Deserialize(payload domain.Payload, expected domain.PayloadType, out any) error {
	if payload.Type != expected {
		return &errs.CodecError{
			PayloadType: string(expected),
			Err:         fmt.Errorf("%w: got %q", errTypeMismatch, payload.Type),
		}
	}
	if payload.IsRef() {
		return &errs.CodecError{PayloadType: string(expected), Err: fmt.Errorf("%w: %s", errUnresolvedRef, payload.Ref)}
	}
	if len(payload.Data) == 0 {
		return &errs.CodecError{PayloadType: string(expected), Err: errEmptyPayload}
	}
	if err := p.codec.Unmarshal(payload.Data, out); err != nil {
		return &errs.CodecError{PayloadType: string(expected), Err: err}
	}
	return nil
}

func (p *PayloadCodec) SerializeJobConf(conf domain.JobConf) (domain.Payload, error) {
	return p.Serialize(domain.PayloadTypeJobConf, conf)
}

func (p *PayloadCodec) DeserializeJobConf(payload domain.Payload) (domain.JobConf, error) {
	var conf domain.JobConf
	if err := p.Deserialize(payload, domain.PayloadTypeJobConf, &conf); err != nil {
		return nil, err
	}
	if conf == nil {
		conf = domain.JobConf{}
	}
	return conf, nil
}

func (p *PayloadCodec) SerializeWork(work *domain.SparkWork) (domain.Payload, error) {
	return p.Serialize(domain.PayloadTypeWork, work)
}

func (p *PayloadCodec) DeserializeWork(payload domain.Payload) (*domain.SparkWork, error) {
	var work domain.SparkWork
	if err := p.Deserialize(payload, domain.PayloadTypeWork, &work); err != nil {
		return nil, err
	}
	return &work, nil
}

func (p *PayloadCodec) SerializeScratchDir(dir domain.ScratchDir) (domain.Payload, error) {
	return p.Serialize(domain.PayloadTypeScratchDir, dir)
}

func (p *PayloadCodec) DeserializeScratchDir(payload domain.Payload) (domain.ScratchDir, error) {
	var dir domain.ScratchDir
	if err := p.Deserialize(payload, domain.PayloadTypeScratchDir, &dir); err != nil {
		return domain.ScratchDir{}, err
	}
	return dir, nil
}

// EncodeResult encodes a job's return value for a JobResult envelope
func (p *PayloadCodec) EncodeResult(value any) ([]byte, error) {
	payload, err := p.Serialize(domain.PayloadTypeResult, value)
	if err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// DecodeResult decodes the bytes of a JobResult envelope into out
func (p *PayloadCodec) DecodeResult(data []byte, out any) error {
	return p.Deserialize(domain.Payload{Type: domain.PayloadTypeResult, Data: data}, domain.PayloadTypeResult, out)
}
