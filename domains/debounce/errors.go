package debounce

import "errors"

var (
	// ErrEmptyChatID se retorna cuando se encola un trigger sin chat
	ErrEmptyChatID = errors.New("chat id is required")
)
