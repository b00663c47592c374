package httpclient

// ResponseHandler turns a 2xx CompletedResponse into the caller's value.
// It is only invoked after Classify returned nil.
type ResponseHandler[T any] interface {
	Handle(resp *CompletedResponse) (T, error)
}

// HandlerFunc adapts a function to ResponseHandler.
type HandlerFunc[T any] func(resp *CompletedResponse) (T, error)

// Handle calls f(resp).
func (f HandlerFunc[T]) Handle(resp *CompletedResponse) (T, error) {
	return f(resp)
}

// JSON decodes the body as JSON into T.
func JSON[T any]() ResponseHandler[T] {
	return Decode[T](JSONCodec{})
}

// XML decodes the body as XML into T.
func XML[T any]() ResponseHandler[T] {
	return Decode[T](XMLCodec{})
}

// Decode decodes the body into T with codec. An empty body yields the zero
// value of T. Decoding failures are returned as *DeserializationError.
func Decode[T any](codec Codec) ResponseHandler[T] {
	return HandlerFunc[T](func(resp *CompletedResponse) (T, error) {
		var v T
		if len(resp.Body) == 0 {
			return v, nil
		}
		if err := codec.Unmarshal(resp.Body, &v); err != nil {
			return v, &DeserializationError{
				StatusCode: resp.StatusCode,
				Body:       resp.Body,
				Err:        err,
			}
		}
		return v, nil
	})
}

// Bytes returns the raw body.
func Bytes() ResponseHandler[[]byte] {
	return HandlerFunc[[]byte](func(resp *CompletedResponse) ([]byte, error) {
		return resp.Body, nil
	})
}

// Completed returns the whole response, including status and headers.
func Completed() ResponseHandler[*CompletedResponse] {
	return HandlerFunc[*CompletedResponse](func(resp *CompletedResponse) (*CompletedResponse, error) {
		return resp, nil
	})
}
