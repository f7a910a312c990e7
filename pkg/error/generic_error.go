package error

// GenericError is implemented by every typed error in this package so the
// REST layer can map it to a response envelope.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}
