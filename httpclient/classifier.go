package httpclient

// Classify maps a completed response to its terminal error by status code.
// It returns nil for 2xx; the body is then left to the response handler.
//
//   - 2xx: nil
//   - 4xx: *ClientError
//   - 5xx: *ServerError
//   - anything else: *ProtocolError
//
// The error carries the raw body bytes unmodified.
func Classify(resp *CompletedResponse) error {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 400 && status < 500:
		return &ClientError{StatusCode: status, Reason: resp.Reason, Body: resp.Body}
	case status >= 500 && status < 600:
		return &ServerError{StatusCode: status, Reason: resp.Reason, Body: resp.Body}
	default:
		return &ProtocolError{StatusCode: status, Reason: resp.Reason, Body: resp.Body}
	}
}
