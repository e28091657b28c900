package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config file names, in lookup order.
const (
	FileName    = "workbench.yaml"
	FileNameAlt = "workbench.yml"
)

// EnvPrefix prefixes environment variables. A double underscore separates
// nested keys: WORKBENCH_SESSION__MAX_TABS sets session.max_tabs.
const EnvPrefix = "WORKBENCH_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// flagKeys maps flag names whose config key is not the snake_case flag name.
var flagKeys = map[string]string{
	"storage": "storage.path",
	"history": "history.path",
	"port":    "ui.port",
	"env":     "default_environment",
}

// Options controls Load.
type Options struct {
	// ConfigFile is an explicit config file; empty searches for one.
	ConfigFile string
	// Flags overrides values with the flags that were set.
	Flags *pflag.FlagSet
	// WorkDir is where the search starts; empty means the current directory.
	WorkDir string
}

// Load builds the configuration. The precedence, highest first, is flags,
// environment variables, config file, defaults.
func Load(opts Options) (*Config, error) {
	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		workDir = wd
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	root := explicitProjectDir(opts.Flags, workDir)
	cfgFile := opts.ConfigFile
	if cfgFile != "" {
		cfgFile = resolvePath(cfgFile, workDir)
	} else {
		searchFrom := root
		if searchFrom == "" {
			searchFrom = workDir
		}
		cfgFile = findConfigUpward(searchFrom)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[f.Name]; ok {
				key = mapped
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ConfigFile = cfgFile

	// The project directory anchors every relative path. A relative
	// project_dir is taken from the config file's directory.
	base := workDir
	if cfgFile != "" {
		base = filepath.Dir(cfgFile)
	}
	if root != "" {
		cfg.ProjectDir = root
	} else {
		cfg.ProjectDir = resolvePath(cfg.ProjectDir, base)
	}
	cfg.Storage.Path = resolveDBPath(cfg.Storage.Path, cfg.ProjectDir)
	cfg.History.Path = resolveDBPath(cfg.History.Path, cfg.ProjectDir)

	if len(cfg.Environments) == 0 {
		cfg.Environments = defaultEnvironments()
	}
	for id, e := range cfg.Environments {
		e.DSN = expandEnvVars(e.DSN)
		cfg.Environments[id] = e
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns WORKBENCH_SESSION__MAX_TABS into session.max_tabs.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func explicitProjectDir(flags *pflag.FlagSet, workDir string) string {
	if flags == nil || !flags.Changed("project-dir") {
		return ""
	}
	dir, _ := flags.GetString("project-dir")
	if dir == "" {
		return ""
	}
	return resolvePath(dir, workDir)
}

func configIn(dir string) string {
	for _, name := range []string{FileName, FileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findConfigUpward searches startDir and its parents for a config file.
func findConfigUpward(startDir string) string {
	dir := startDir
	for range maxUpwardSearchLevels {
		if found := configIn(dir); found != "" {
			return found
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func resolvePath(path, baseDir string) string {
	if path == "" {
		return baseDir
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return filepath.Clean(path)
}

func resolveDBPath(path, baseDir string) string {
	if path == MemoryPath {
		return path
	}
	return resolvePath(path, baseDir)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the variable's value, leaving unset
// variables untouched.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("workspace", "", "Workspace identity whose session is loaded")
	fs.String("project-dir", "", "Project directory (default: directory of workbench.yaml)")
	fs.String("models-dir", "", "Models directory relative to the project")
	fs.String("storage", "", "Session database path or :memory:")
	fs.String("history", "", "History database path or :memory:")
	fs.String("env", "", "Default environment")
	fs.Int("port", 0, "HTTP port for serve")
	fs.BoolP("verbose", "v", false, "Verbose output")
}
