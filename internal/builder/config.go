package builder

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/frederic-klein/yapb/internal/errors"
)

// Config holds the recognized build settings.
type Config struct {
	// PythonTag replaces the python part of the wheel tag (--python-tag).
	PythonTag string `mapstructure:"--python-tag"`
	// PyLimitedAPI targets the stable ABI of the given CPython, e.g. "cp38"
	// (--py-limited-api). The wheel gets that python tag and the abi3 ABI.
	PyLimitedAPI string `mapstructure:"--py-limited-api"`
	// PlatName replaces the platform tag (--plat-name).
	PlatName string `mapstructure:"--plat-name"`
	// Python is the interpreter that runs the native build.
	Python string `mapstructure:"python"`
}

var (
	limitedAPIRe = regexp.MustCompile(`^cp3\d+$`)
	tagPartRe    = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)
)

// Validate checks the setting values.
func (c Config) Validate() error {
	if c.PyLimitedAPI != "" && !limitedAPIRe.MatchString(c.PyLimitedAPI) {
		return errors.New(errors.ErrCodeInvalidConfig, "--py-limited-api must look like cp38, got %q", c.PyLimitedAPI)
	}
	if c.PythonTag != "" && !tagPartRe.MatchString(c.PythonTag) {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid --python-tag %q", c.PythonTag)
	}
	if c.PlatName != "" && !tagPartRe.MatchString(normalizePlatform(c.PlatName)) {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid --plat-name %q", c.PlatName)
	}
	return nil
}

func normalizePlatform(p string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(p)
}

// DefaultEpoch is the timestamp of every archive member when
// SOURCE_DATE_EPOCH is not set. Zip cannot store anything earlier.
var DefaultEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// SourceDateEpoch returns the archive timestamp from SOURCE_DATE_EPOCH,
// clamped to DefaultEpoch.
func SourceDateEpoch() (time.Time, error) {
	v := strings.TrimSpace(os.Getenv("SOURCE_DATE_EPOCH"))
	if v == "" {
		return DefaultEpoch, nil
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid SOURCE_DATE_EPOCH %q", v)
	}
	t := time.Unix(secs, 0).UTC()
	if t.Before(DefaultEpoch) {
		return DefaultEpoch, nil
	}
	return t, nil
}
