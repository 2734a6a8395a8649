package ipatools

// Envelope is the uniform tool response.
type Envelope struct {
	OK        bool   `json:"ok"`
	Data      any    `json:"data,omitempty"`
	ErrorKind Kind   `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Success wraps data in a successful envelope.
func Success(data any) Envelope {
	return Envelope{OK: true, Data: data}
}

// Failure builds a failed envelope.
func Failure(kind Kind, message string) Envelope {
	return Envelope{OK: false, ErrorKind: kind, Message: message}
}
