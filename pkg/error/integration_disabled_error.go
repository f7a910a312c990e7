package error

import "net/http"

type IntegrationDisabledError string

func (err IntegrationDisabledError) Error() string {
	return string(err)
}

func (err IntegrationDisabledError) ErrCode() string {
	return "INTEGRATION_DISABLED"
}

func (err IntegrationDisabledError) StatusCode() int {
	return http.StatusConflict
}
