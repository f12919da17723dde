package config

import (
	"github.com/spf13/pflag"
)

// Flag names bound by RegisterFlags.
const (
	FlagDataDir    = "data-dir"
	FlagSerializer = "serializer"
)

// RegisterFlags defines the configuration overrides on fs. Their values are
// applied by ApplyFlags only when set on the command line.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagDataDir, "", "data directory (overrides data_dir)")
	fs.String(FlagSerializer, "", "snapshot and journal serializer: msgpack or bson")
}

// ApplyFlags copies the flags set on fs into cfg and revalidates.
func ApplyFlags(fs *pflag.FlagSet, cfg *Config) error {
	changed := false
	for name, dst := range map[string]*string{
		FlagDataDir:    &cfg.DataDir,
		FlagSerializer: &cfg.Serializer,
	} {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		*dst = f.Value.String()
		changed = true
	}
	if !changed {
		return nil
	}
	return cfg.Validate()
}
