// Package transport builds JSON HTTP handlers from plain functions.
package transport

import (
	"context"
	"net/http"
	"strconv"

	"github.com/fxsound/soundstudio/pkg/errs"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type StatusCoder interface {
	StatusCode() int
}

type Encoder interface {
	Encode(w http.ResponseWriter) error
}

// Validator is implemented by request types that check themselves once
// decoded.
type Validator interface {
	Validate() error
}

type DecoderFunc[In any] func(r *http.Request) (In, error)

// TargetFunc handles the decoded request. The *http.Request is there for
// headers and URL parameters.
type TargetFunc[In any, Out any] func(context.Context, *http.Request, In) (Out, error)

type Transport[In any, Out any] struct {
	decoderFn DecoderFunc[In]
	targetFn  TargetFunc[In, Out]
}

func For[In any, Out any](target TargetFunc[In, Out]) *Transport[In, Out] {
	return &Transport[In, Out]{
		targetFn: target,
	}
}

func (h *Transport[In, Out]) RequestFromJSON() *Transport[In, Out] {
	h.decoderFn = func(r *http.Request) (In, error) {
		var in In

		err := json.NewDecoder(r.Body).Decode(&in)
		if err != nil {
			return in, err
		}

		return in, nil
	}

	return h
}

func (h *Transport[In, Out]) encode(w http.ResponseWriter, out Out) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	code := http.StatusOK
	if sc, ok := any(out).(StatusCoder); ok {
		code = sc.StatusCode()
	}

	w.WriteHeader(code)
	if code == http.StatusNoContent {
		return nil
	}

	return json.NewEncoder(w).Encode(out)
}

func (h *Transport[In, Out]) Build(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debug().Str("method", r.Method).Str("url", r.URL.RequestURI()).Msg("handling request")

		var in In
		var err error

		if h.decoderFn != nil {
			in, err = h.decoderFn(r)
			if err != nil {
				errs.HTTPErrorResponse(w, logger, errs.E(errs.InvalidRequest, err))
				return
			}

			if v, ok := any(in).(Validator); ok {
				err = v.Validate()
				if err != nil {
					errs.HTTPErrorResponse(w, logger, errs.E(errs.Validation, err))
					return
				}
			}
		}

		out, err := h.targetFn(r.Context(), r, in)
		if err != nil {
			errs.HTTPErrorResponse(w, logger, err)
			return
		}

		if v, ok := any(out).(Encoder); ok {
			err = v.Encode(w)
			if err != nil {
				logger.Error().Err(err).Msg("writing response")
			}

			return
		}

		err = h.encode(w, out)
		if err != nil {
			logger.Error().Err(err).Msg("encoding response")
		}
	}
}

// Empty is a response without a body.
type Empty struct{}

func (e *Empty) StatusCode() int {
	return http.StatusNoContent
}

// ByteWriter sends raw bytes, such as an audio file.
type ByteWriter struct {
	data        []byte
	contentType string
}

func (b *ByteWriter) Encode(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", b.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(b.data)))
	w.WriteHeader(http.StatusOK)

	_, err := w.Write(b.data)

	return err
}

func NewByteWriter(contentType string, data []byte) *ByteWriter {
	return &ByteWriter{
		data:        data,
		contentType: contentType,
	}
}
