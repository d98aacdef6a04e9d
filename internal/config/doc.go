// Package config loads the workbench session configuration and manages the
// standard data paths.
//
// # Configuration Loading
//
// Load merges, in increasing priority:
//
//  1. Built-in defaults (Default)
//  2. Global config: $XDG_CONFIG_HOME/workbench/workbench.json or .jsonc
//  3. Project config: <project>/.workbench/workbench.json, .jsonc, .yaml or .yml
//  4. The file named by WORKBENCH_CONFIG
//  5. Inline JSON from WORKBENCH_CONFIG_CONTENT
//  6. Environment overrides (WORKBENCH_LOG_LEVEL, WORKBENCH_DEFAULT_FILE,
//     WORKBENCH_STUB_ARCHIVES, WORKBENCH_WATCH, WORKBENCH_RESTORE_OPEN_FILES).
//     Values missing from the process environment are read from <project>/.env.
//
// JSONC comments are stripped with tidwall/jsonc; YAML is parsed with yaml.v3.
//
// # Variable Interpolation
//
// String values may contain {env:VAR} and {file:path} placeholders. Relative
// file paths resolve against the directory of the config file that uses them.
//
//	{
//	  // jars shipped with the SDK
//	  "stubArchives": ["{env:ANDROID_HOME}/platforms/android-33/android.jar"],
//	  "defaultFile": "app/src/main/java/com/example/MainActivity.java"
//	}
//
// # Merging
//
// Later sources replace scalar values and whole lists of earlier ones; unset
// fields leave earlier values in place.
package config
