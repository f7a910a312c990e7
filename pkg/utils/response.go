package utils

// ResponseData is the uniform REST envelope returned by every handler.
type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded panics when err is non-nil so the recovery middleware can
// translate it into the REST envelope.
func PanicIfNeeded(err any) {
	if err != nil {
		panic(err)
	}
}
