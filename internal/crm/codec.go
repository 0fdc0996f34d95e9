package crm

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/json-iterator/go/extra"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	// numeric columns arrive as strings from some backend versions
	extra.RegisterFuzzyDecoders()
}

func decodeResult[T any](r gjson.Result) (*T, error) {
	var v T
	if !r.Exists() {
		return nil, fmt.Errorf("empty response")
	}
	if err := json.UnmarshalFromString(r.Raw, &v); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &v, nil
}

func encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unable to encode request: %w", err)
	}
	return b, nil
}
