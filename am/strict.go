package am

import (
	"github.com/BurntSushi/toml"

	"github.com/teranos/prism/errors"
)

// UnknownKeys decodes a config file strictly and returns the keys that map to
// no setting. Viper ignores those silently, so a typo in a key falls back to
// the default without notice.
func UnknownKeys(path string) ([]string, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	var keys []string
	for _, k := range md.Undecoded() {
		keys = append(keys, k.String())
	}
	return keys, nil
}
