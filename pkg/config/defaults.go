package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

//go:embed etc/*.cfg
var bundledFS embed.FS

// UserConfigFile is the per-user configuration file name, relative to the
// user's home directory.
const UserConfigFile = ".simflow.cfg"

// SiteConfigEnv names the environment variable that points at an optional
// site-wide configuration file, read between the bundled defaults and the
// user file.
const SiteConfigEnv = "SIMFLOW_SITE_CONFIG"

// ProjectNameKey is the per-section variable holding the project name. When
// not set explicitly it defaults to the section name itself.
const ProjectNameKey = "Sim.ProjectName"

// DefaultProjectKey names the variable selecting the project section used
// when no project is named on the command line.
const DefaultProjectKey = "Sim.DefaultProject"

// ReadConfig builds the Store from the standard cascade: bundled system
// defaults, bundled platform defaults (if any), the site file named by
// $SIMFLOW_SITE_CONFIG, the user file ~/.simflow.cfg, any explicitly named
// extra files, and finally the given command-line overrides
// ("[section:]key=value"). Only the bundled system defaults and explicitly
// named files are required to exist.
func ReadConfig(overrides []string, extraFiles ...string) (*Store, error) {
	loader := NewLoader()

	system, err := bundledFS.ReadFile("etc/system.cfg")
	if err != nil {
		return nil, err
	}
	if err := loader.AddSource("system", system); err != nil {
		return nil, err
	}

	if platform, err := bundledFS.ReadFile("etc/" + runtime.GOOS + ".cfg"); err == nil {
		if err := loader.AddSource("platform", platform); err != nil {
			return nil, err
		}
	}

	if site := os.Getenv(SiteConfigEnv); site != "" {
		if err := loader.AddFile("site", site, true); err != nil {
			return nil, err
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		if err := loader.AddFile("user", filepath.Join(home, UserConfigFile), false); err != nil {
			return nil, err
		}
	}

	for i, extra := range extraFiles {
		if err := loader.AddFile(fmt.Sprintf("extra%d", i), extra, true); err != nil {
			return nil, err
		}
	}

	for _, spec := range overrides {
		if err := loader.Set(spec); err != nil {
			return nil, err
		}
	}

	return loader.Load()
}

// ProjectSection resolves the section to operate on: the explicit name when
// given, else the configured default project, else DEFAULT.
func (s *Store) ProjectSection(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if name, ok, err := s.Get(DefaultSection, DefaultProjectKey); err == nil && ok && name != "" {
		return name
	}
	return DefaultSection
}
