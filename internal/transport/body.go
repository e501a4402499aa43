package transport

import (
	"github.com/bytedance/sonic"
)

// BodyWithExtras flattens a typed request into a generic body and merges
// the escape-hatch maps over it, last writer wins. Keys must already be in
// the vendor's wire vocabulary; nothing is translated.
func BodyWithExtras(req any, extras ...map[string]any) (map[string]any, error) {
	raw, err := sonic.Marshal(req)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := sonic.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	for _, extra := range extras {
		for k, v := range extra {
			body[k] = v
		}
	}
	return body, nil
}
