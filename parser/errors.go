package parser

// ErrorKind classifies a ParseError.
type ErrorKind string

const (
	// MalformedInput means the text is empty or not a key/value stream.
	MalformedInput ErrorKind = "MalformedInput"
	// UnknownAction means the named action is not registered.
	UnknownAction ErrorKind = "UnknownAction"
	// MissingParameter means a required parameter is absent.
	MissingParameter ErrorKind = "MissingParameter"
	// UnexpectedParameter means a key outside the declared parameters was given.
	UnexpectedParameter ErrorKind = "UnexpectedParameter"
)

// ParseError is returned by Parse. Message is addressed to the agent and
// restates the valid options so it can correct itself.
type ParseError struct {
	Kind    ErrorKind
	Message string
}

func (e *ParseError) Error() string { return e.Message }
