package backend

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/frederic-klein/yapb/internal/builder"
	"github.com/frederic-klein/yapb/internal/errors"
)

// EnvPrefix prefixes the environment variables that provide setting
// defaults, e.g. YAPB_PLAT_NAME.
const EnvPrefix = "YAPB"

// settingEnv maps every recognized setting to its environment variable.
var settingEnv = map[string]string{
	"--python-tag":     EnvPrefix + "_PYTHON_TAG",
	"--py-limited-api": EnvPrefix + "_PY_LIMITED_API",
	"--plat-name":      EnvPrefix + "_PLAT_NAME",
	"python":           EnvPrefix + "_PYTHON",
}

// ParseConfig decodes frontend config settings over the environment
// defaults. Unknown keys are ignored; a repeated setting (a list) takes its
// last value.
func ParseConfig(settings map[string]any) (builder.Config, error) {
	v := viper.New()
	for key, env := range settingEnv {
		if err := v.BindEnv(key, env); err != nil {
			return builder.Config{}, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	for key, value := range settings {
		if _, ok := settingEnv[key]; !ok {
			continue
		}
		s, err := settingValue(value)
		if err != nil {
			return builder.Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "config setting %s", key)
		}
		v.Set(key, s)
	}

	var cfg builder.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return builder.Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decoding config settings")
	}
	if err := cfg.Validate(); err != nil {
		return builder.Config{}, err
	}
	return cfg, nil
}

func settingValue(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool, int, int64, float64:
		return fmt.Sprint(v), nil
	case []string:
		if len(v) == 0 {
			return "", nil
		}
		return v[len(v)-1], nil
	case []any:
		if len(v) == 0 {
			return "", nil
		}
		return settingValue(v[len(v)-1])
	default:
		return "", fmt.Errorf("unsupported value of type %T", value)
	}
}
