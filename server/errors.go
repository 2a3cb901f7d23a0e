package server

// Error represents an error returned by the issuer to an HTTP client.
type Error struct {
	Type        ErrorType `json:"error"`
	Status      int       `json:"status"`
	Description string    `json:"description"`
}

type ErrorType string

var (
	ErrorNotFound         Error = Error{Type: "NOT_FOUND", Status: 404, Description: "Unknown endpoint"}
	ErrorMethodNotAllowed Error = Error{Type: "METHOD_NOT_ALLOWED", Status: 405, Description: "Method not allowed on this endpoint"}
	ErrorNotReady         Error = Error{Type: "NOT_READY", Status: 503, Description: "Issuer configuration has not been loaded yet"}
	ErrorUnknown          Error = Error{Type: "EXCEPTION", Status: 500, Description: "Encountered unexpected problem"}
)

// RemoteError is the JSON body sent along with an Error.
type RemoteError struct {
	Status      int    `json:"status,omitempty"`
	ErrorName   string `json:"error,omitempty"`
	Description string `json:"description,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (err *RemoteError) Error() string {
	return err.ErrorName + ": " + err.Message
}
