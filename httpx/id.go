package httpx

import "github.com/google/uuid"

// newRequestID returns a random (version 4) UUID in canonical form.
func newRequestID() string {
	return uuid.NewString()
}
