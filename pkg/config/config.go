package config

import (
	"path/filepath"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// FileName is the optional settings file looked up in the project root
const FileName = "hivebuild.toml"

// Settings describes how hivebuild itself runs. The pipeline is configured by the project script.
type Settings struct {
	Script  string `default:"hive.star" usage:"Project configuration script, relative to the project root"`
	Package string `default:"package.json" usage:"Package metadata file that carries the theme version"`
	Log     struct {
		Level string `default:"info"`
		JSON  bool   `default:"false" usage:"Output JSONND instead of pretty console messages"`
	}
	Watch struct {
		Debounce string `default:"300ms" usage:"Quiet period before a batch of changes is processed"`
	}
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty settings object and returns a new Loader for this object.
// Flags are handled by the CLI so only defaults, the settings file and HIVEBUILD_* variables
// are read.
func Loader(projectRoot string) (*Settings, *aconfig.Loader) {
	cfg := Settings{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "HIVEBUILD",
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		Files:            []string{filepath.Join(projectRoot, FileName)},
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the settings for projectRoot and validates them
func Load(projectRoot string) (*Settings, error) {
	cfg, loader := Loader(projectRoot)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "failed to load settings")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies that all settings have valid values
func (cfg *Settings) Validate() error {
	if _, ok := logLevels[cfg.Log.Level]; !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	debounce, err := time.ParseDuration(cfg.Watch.Debounce)
	if err != nil {
		return eris.Wrapf(err, `Invalid value for watch.debounce`)
	}
	if debounce < 0 {
		return eris.Errorf(`Invalid value for watch.debounce: %s (must not be negative)`, cfg.Watch.Debounce)
	}

	if cfg.Script == "" {
		return eris.New(`Invalid value for script: must not be empty`)
	}
	if cfg.Package == "" {
		return eris.New(`Invalid value for package: must not be empty`)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Settings) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// SetLogLevel overrides the configured level, for example from a CLI flag
func (cfg *Settings) SetLogLevel(level string) error {
	if _, ok := logLevels[level]; !ok {
		return eris.Errorf(`Invalid log level: %s`, level)
	}
	cfg.Log.Level = level
	return nil
}

// Debounce returns the parsed watch.debounce value
func (cfg *Settings) Debounce() time.Duration {
	debounce, err := time.ParseDuration(cfg.Watch.Debounce)
	if err != nil {
		return 300 * time.Millisecond
	}
	return debounce
}
