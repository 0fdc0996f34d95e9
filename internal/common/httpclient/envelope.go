package httpclient

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// SuccessCode is the only envelope code that means success.
const SuccessCode = 200

// checkEnvelope rejects a 2xx body whose envelope code is present and not
// SuccessCode. Bodies without a code field, and non-object bodies, pass.
func checkEnvelope(body []byte) error {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil
	}
	code := root.Get("code")
	if !code.Exists() {
		return nil
	}
	if code.Type == gjson.Number && code.Num == SuccessCode {
		return nil
	}
	return newBusinessError(int(code.Int()), root.Get("message").String(), body)
}

// Data returns the envelope payload, or the whole body when the envelope has
// no usable data field.
func (r *Response) Data() gjson.Result {
	if len(r.Body) == 0 || !gjson.ValidBytes(r.Body) {
		return gjson.Result{}
	}
	root := gjson.ParseBytes(r.Body)
	if d := root.Get("data"); truthy(d) {
		return d
	}
	return root
}

// DecodeData unmarshals Data into v.
func (r *Response) DecodeData(v any) error {
	d := r.Data()
	if !d.Exists() {
		return fmt.Errorf("empty response")
	}
	if err := json.Unmarshal([]byte(d.Raw), v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// truthy mirrors how the backend's web clients test a payload field:
// missing, null, false, zero and the empty string count as absent.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	default:
		return r.Exists()
	}
}
