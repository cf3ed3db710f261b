package config

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// ParseTOML decodes a TOML document into flat Settings. Nested tables are
// flattened with dotted keys ([wifi] ssid = "x" becomes "wifi.ssid") and
// scalar values are stringified.
func ParseTOML(r io.Reader) (Settings, error) {
	var raw map[string]any
	if _, err := toml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}

	settings := Settings{}
	flatten(settings, "", raw)
	return settings, nil
}

func flatten(dst Settings, prefix string, table map[string]any) {
	for k, v := range table {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		switch val := v.(type) {
		case map[string]any:
			flatten(dst, key, val)
		case string:
			dst[key] = val
		default:
			dst[key] = fmt.Sprint(val)
		}
	}
}
