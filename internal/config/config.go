package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// DefaultSourceRoot is the primary source root looked up under the project root.
const DefaultSourceRoot = "app/src/main/java"

// Config is the session configuration.
type Config struct {
	Schema string `json:"$schema,omitempty" yaml:"-"`

	// SourceRoots are project-relative directories added to the classpath
	// ahead of the project root. Missing ones are skipped.
	SourceRoots []string `json:"sourceRoots,omitempty" yaml:"sourceRoots,omitempty"`
	// StubArchives are platform/runtime jars added to the classpath.
	StubArchives []string `json:"stubArchives,omitempty" yaml:"stubArchives,omitempty"`
	// DefaultFile is opened once the project is ready. Relative paths are
	// resolved against the project root.
	DefaultFile string `json:"defaultFile,omitempty" yaml:"defaultFile,omitempty"`
	// RestoreOpenFiles reopens files remembered from the previous session.
	RestoreOpenFiles *bool `json:"restoreOpenFiles,omitempty" yaml:"restoreOpenFiles,omitempty"`
	// Watch enables the project tree watcher.
	Watch *bool `json:"watch,omitempty" yaml:"watch,omitempty"`
	// TreeIgnore are doublestar patterns excluded from the file tree.
	TreeIgnore []string `json:"treeIgnore,omitempty" yaml:"treeIgnore,omitempty"`
	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	restore := true
	watch := false
	return &Config{
		SourceRoots:      []string{DefaultSourceRoot},
		RestoreOpenFiles: &restore,
		Watch:            &watch,
		LogLevel:         "INFO",
	}
}

// ShouldRestoreOpenFiles reports whether remembered files are reopened.
func (c *Config) ShouldRestoreOpenFiles() bool {
	return c.RestoreOpenFiles == nil || *c.RestoreOpenFiles
}

// ShouldWatch reports whether the project tree watcher is enabled.
func (c *Config) ShouldWatch() bool {
	return c.Watch != nil && *c.Watch
}

// Load loads configuration from multiple sources (priority order):
// 1. Built-in defaults
// 2. Global config (~/.config/workbench/workbench.json[c])
// 3. Project config (.workbench/workbench.json[c|yaml|yml])
// 4. WORKBENCH_CONFIG file
// 5. WORKBENCH_CONFIG_CONTENT inline JSON
// 6. Environment variables, with the project's .env as fallback
func Load(directory string) (*Config, error) {
	config := Default()
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config, baseDir)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
		loaded[absPath] = true
		return nil
	}

	globalPath := GetPaths().Config
	candidates := [][2]string{
		{filepath.Join(globalPath, "workbench.json"), globalPath},
		{filepath.Join(globalPath, "workbench.jsonc"), globalPath},
	}
	if directory != "" {
		projectDir := filepath.Join(directory, ".workbench")
		for _, name := range []string{"workbench.json", "workbench.jsonc", "workbench.yaml", "workbench.yml"} {
			candidates = append(candidates, [2]string{filepath.Join(projectDir, name), projectDir})
		}
	}
	if configPath := os.Getenv("WORKBENCH_CONFIG"); configPath != "" {
		candidates = append(candidates, [2]string{configPath, filepath.Dir(configPath)})
	}
	for _, c := range candidates {
		if err := loadOnce(c[0], c[1]); err != nil {
			return nil, err
		}
	}

	if content := os.Getenv("WORKBENCH_CONFIG_CONTENT"); content != "" {
		var inline Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), &inline); err != nil {
			return nil, fmt.Errorf("WORKBENCH_CONFIG_CONTENT: %w", err)
		}
		mergeConfig(config, &inline)
	}

	applyEnvOverrides(config, envLookup(directory))
	return config, nil
}

// loadConfigFile loads a single JSON, JSONC or YAML file with interpolation support.
func loadConfigFile(path string, config *Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fileConfig Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data = interpolate(data, baseDir, false)
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	default:
		data = interpolate(jsonc.ToJSON(data), baseDir, true)
		if err := json.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	}

	mergeConfig(config, &fileConfig)
	return nil
}

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// interpolate processes {env:VAR} and {file:path} placeholders. File
// contents are escaped for embedding in a JSON string when escapeJSON is set.
func interpolate(data []byte, baseDir string, escapeJSON bool) []byte {
	str := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match
		}
		value := strings.TrimSpace(string(content))
		if !escapeJSON {
			return value
		}
		escaped, _ := json.Marshal(value)
		return string(escaped[1 : len(escaped)-1])
	})

	return []byte(str)
}

// mergeConfig merges source config into target. Non-empty scalars and
// slices in source replace the target's.
func mergeConfig(target, source *Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if len(source.SourceRoots) > 0 {
		target.SourceRoots = append([]string(nil), source.SourceRoots...)
	}
	if len(source.StubArchives) > 0 {
		target.StubArchives = append([]string(nil), source.StubArchives...)
	}
	if source.DefaultFile != "" {
		target.DefaultFile = source.DefaultFile
	}
	if source.RestoreOpenFiles != nil {
		v := *source.RestoreOpenFiles
		target.RestoreOpenFiles = &v
	}
	if source.Watch != nil {
		v := *source.Watch
		target.Watch = &v
	}
	if len(source.TreeIgnore) > 0 {
		target.TreeIgnore = append([]string(nil), source.TreeIgnore...)
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
}

// envLookup returns a lookup that prefers the process environment and falls
// back to the project's .env file.
func envLookup(directory string) func(string) string {
	var dotenv map[string]string
	if directory != "" {
		dotenv, _ = godotenv.Read(filepath.Join(directory, ".env"))
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}
}

func applyEnvOverrides(config *Config, getenv func(string) string) {
	if v := getenv("WORKBENCH_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := getenv("WORKBENCH_DEFAULT_FILE"); v != "" {
		config.DefaultFile = v
	}
	if v := getenv("WORKBENCH_STUB_ARCHIVES"); v != "" {
		config.StubArchives = filepath.SplitList(v)
	}
	if v := getenv("WORKBENCH_WATCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Watch = &b
		}
	}
	if v := getenv("WORKBENCH_RESTORE_OPEN_FILES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.RestoreOpenFiles = &b
		}
	}
}
