package encoding

import (
	jsoniter "github.com/json-iterator/go"
)

// JSONiter keeps numbers as json.Number so 64-bit values survive decoding.
var JSONiter = jsoniter.Config{
	EscapeHTML:             false,
	CaseSensitive:          true,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
	SortMapKeys:            true,
}.Froze()
