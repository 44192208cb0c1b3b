package openmwcfg

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/mitchellh/go-homedir"
)

// EnvConfig names an openmw.cfg file, or the directory holding one, that
// overrides the default location.
const EnvConfig = "OPENMW_CONFIG"

// FileName is the configuration file name. It is matched case-insensitively.
const FileName = "openmw.cfg"

// UserConfigDir returns the directory OpenMW reads user settings from.
func UserConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "Documents", "My Games", "OpenMW"), nil
	case "darwin":
		return filepath.Join(home, "Library", "Preferences", "openmw"), nil
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "openmw"), nil
		}
		return filepath.Join(home, ".config", "openmw"), nil
	}
}

// UserDataDir returns the directory substituted for ?userdata?.
func UserDataDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "Documents", "My Games", "OpenMW"), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "openmw"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "openmw"), nil
		}
		return filepath.Join(home, ".local", "share", "openmw"), nil
	}
}

// globalDataDir returns the directory substituted for ?global?.
func globalDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return os.Getenv("ProgramData")
	case "darwin":
		return "/Library/Application Support"
	default:
		return "/usr/share/games"
	}
}

// DefaultPath returns the openmw.cfg to load when none is given: the
// EnvConfig override when set, otherwise the file in UserConfigDir.
func DefaultPath() (string, error) {
	if env := os.Getenv(EnvConfig); env != "" {
		return homedir.Expand(env)
	}
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}
