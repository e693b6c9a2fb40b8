// Package config loads the wipe engine's runtime settings: whether shredding
// is on by default, how to format byte counts for progress output, and
// which paths are off-limits no matter what the caller asks for.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Options holds the tunables that apply across a whole run, loaded from
// built-in defaults, a config file, and environment variables, in increasing
// order of precedence (env overrides file, file overrides defaults).
type Options struct {
	// Shred, when true, makes Delete overwrite content and obscure names
	// even when the caller didn't explicitly ask for it.
	Shred bool `mapstructure:"shred"`
	// UnitsIEC selects binary units (KiB, MiB, ...) for FormatBytes instead
	// of decimal (KB, MB, ...).
	UnitsIEC bool `mapstructure:"units_iec"`
	// FreeSpaceIdleMillis throttles the free-space filler's progress reporting,
	// in milliseconds between updates, to keep a driving UI responsive.
	FreeSpaceIdleMillis int `mapstructure:"free_space_idle_millis"`
}

// Load reads configuration from (in increasing priority) built-in defaults,
// a "shredfs-config" file found on the usual paths, and SHREDFS_-prefixed
// environment variables.
func Load() (*Options, error) {
	v := viper.New()
	v.SetConfigName("shredfs-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.shredfs")
	v.AddConfigPath("/etc/shredfs")

	v.SetDefault("shred", false)
	v.SetDefault("units_iec", true)
	v.SetDefault("free_space_idle_millis", 2000)

	v.SetEnvPrefix("SHREDFS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &opts, nil
}

// byteUnitsDecimal and byteUnitsIEC name successive multiples of 1000 and
// 1024 bytes respectively, matching the human-readable size conventions
// the original project supports.
var (
	byteUnitsDecimal = []string{"B", "KB", "MB", "GB", "TB", "PB"}
	byteUnitsIEC     = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}
)

// FormatBytes renders n bytes as a human-readable size, e.g. "4.2 MiB".
func FormatBytes(n int64, iec bool) string {
	base := float64(1000)
	units := byteUnitsDecimal
	if iec {
		base = 1024
		units = byteUnitsIEC
	}

	value := float64(n)
	for _, unit := range units {
		if value < base || unit == units[len(units)-1] {
			if unit == "B" {
				return fmt.Sprintf("%.0f %s", value, unit)
			}
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= base
	}
	return fmt.Sprintf("%.1f %s", value, units[len(units)-1])
}
