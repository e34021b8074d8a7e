package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Default WANT rules: the libchrome subset of the browser tree. RE2 has
// no lookahead, so the "base/ except base/third_party/" carve-out is
// expressed as a broad WANT plus a WANT_EXCLUDE that ALWAYS_WANT punches
// back open for the vendored subdirectories we do take.
var defaultWant = []string{
	`base/`,
	`build/(android/(gyp/util|pylib/([^/]*$|constants))|[^/]*\.(h|py)$)`,
	`mojo/`,
	`dbus/`,
	`ipc/.*(\.cc|\.h|\.mojom)$`,
	`ui/gfx/(gfx_export.h|geometry|range)`,
	`testing/[^/]*\.(cc|h)$`,
	`third_party/(jinja2|markupsafe|ply)`,
	`components/(json_schema|policy/core/common/[^/]*$|policy/policy_export.h|timers)`,
	`device/bluetooth/bluetooth_(common|advertisement|uuid|export)\.*(h|cc)`,
	`device/bluetooth/bluez/bluetooth_service_attribute_value_bluez.(h|cc)`,
}

var defaultWantExclude = []string{
	`(.*/)?BUILD.gn$`,
	`(.*/)?PRESUBMIT.py$`,
	`(.*/)?OWNERS$`,
	`(.*/)?SECURITY_OWNERS$`,
	`(.*/)?DEPS$`,
	`base/android/java/src/org/chromium/base/BuildConfig.java`,
	`base/third_party/`,
	`base/(.*/)?(ios|win|fuchsia|mac|openbsd|freebsd|nacl)/.*`,
	`.*_(ios|win|mac|fuchsia|openbsd|freebsd|nacl)[_./]`,
	`.*/(ios|win|mac|fuchsia|openbsd|freebsd|nacl)_`,
	`dbus/(test_serv(er|ice)\.cc|test_service\.h)$`,
}

var defaultAlwaysWant = []string{
	`base/third_party/(dynamic_annotation|icu|nspr|valgrind)`,
	`base/hash/(md5|sha1)_nacl\.(h|cc)$`,
}

var defaultKeep = []string{
	`(Android.bp|BUILD.gn|crypto|libchrome_tools|MODULE_LICENSE_BSD|NOTICE|OWNERS|PRESUBMIT.cfg|soong|testrunner.cc|third_party)(/.*)?$`,
	`[^/]*$`,
	`.*buildflags.h`,
	`base/android/java/src/org/chromium/base/BuildConfig.java`,
	`testing/(gmock|gtest)/`,
	`base/third_party/(libevent|symbolize)`,
}

var defaultKeepExclude = []string{
	`third_party/(jinja2|markupsafe|ply)`,
}

// setDefaults registers every knob with viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("filter.want", defaultWant)
	v.SetDefault("filter.want_exclude", defaultWantExclude)
	v.SetDefault("filter.always_want", defaultAlwaysWant)
	v.SetDefault("filter.keep", defaultKeep)
	v.SetDefault("filter.keep_exclude", defaultKeepExclude)
	v.SetDefault("filter.annotation_key", DefaultAnnotationKey)

	v.SetDefault("checker.boards_mapping", map[string][]string{})
	v.SetDefault("checker.component", DefaultComponent)
	v.SetDefault("checker.max_setup_boards", DefaultMaxSetupBoards)
	v.SetDefault("checker.max_build_packages", DefaultMaxBuildPackages)
	v.SetDefault("checker.max_emerges", DefaultMaxEmerges)
}

// Load reads configuration from the given file (optional; empty path
// loads defaults only) and returns the validated Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)

		readErr := v.ReadInConfig()
		if readErr != nil {
			return nil, fmt.Errorf("read config %s: %w", path, readErr)
		}
	}

	var cfg Config

	unmarshalErr := v.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	if cfg.Filter.AnnotationKey == "" {
		cfg.Filter.AnnotationKey = DefaultAnnotationKey
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return &cfg, nil
}

// ParsePathList splits a line-separated exact-path file into paths,
// dropping blank lines and surrounding whitespace.
func ParsePathList(data []byte) []string {
	var paths []string

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}

	return paths
}
