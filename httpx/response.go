package httpx

// Response is a completed response captured in memory, as returned by
// Router.Request.
type Response struct {
	StatusCode int
	Header     Header
	Body       []byte
}

// String returns the body as text.
func (r *Response) String() string {
	return string(r.Body)
}
