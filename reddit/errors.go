package reddit

import (
	"errors"
	"fmt"
)

// ErrArchived indicates the target is too old to accept replies.
var ErrArchived = errors.New("target is archived")

// APIError is a non-2xx response, or an in-band error from an api_type=json
// endpoint.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("reddit api error (%d): %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("reddit api error: status %d", e.StatusCode)
}

// WikiConflictError is returned by SaveWikiPage when the page was edited
// since the base revision. The server supplies the fresh content and
// revision so the caller can re-apply its transform without another fetch.
type WikiConflictError struct {
	Content    string
	RevisionID string
}

func (e *WikiConflictError) Error() string {
	return fmt.Sprintf("wiki edit conflict at revision %s", e.RevisionID)
}
