package docker

import (
	"io"

	json "github.com/goccy/go-json"
)

func jsonDecode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
