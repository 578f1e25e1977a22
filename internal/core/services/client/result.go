package client

import (
	"context"

	"github.com/vishnukl-alation/hive/internal/adapter/codec"
)

// Result awaits the handle and decodes its result into T
func Result[T any](ctx context.Context, c *codec.PayloadCodec, h *Handle) (T, error) {
	var out T
	data, err := h.Await(ctx)
	if err != nil {
		return out, err
	}
	if err := c.DecodeResult(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
