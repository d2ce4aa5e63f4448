// Package conf reads and validates the runner configuration. Validation is
// fail fast: every path and policy value is checked at load time, before
// any stage touches the filesystem, so a misconfigured run aborts without
// leaving half-built directories behind.
package conf

import (
	"fmt"
	"path"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wrfinfra/wrfchem-runner/fsutil"
	"github.com/wrfinfra/wrfchem-runner/namelist"
	"github.com/wrfinfra/wrfchem-runner/validate"
)

// DefaultStaleAfter is assumed when `Staging.StaleAfter` is unset: leftover
// scratch directories older than this count as abandoned.
const DefaultStaleAfter = 24 * time.Hour

// Load reads and validates a configuration file. Relative folder paths are
// resolved against the directory containing the file.
func Load(confPath string) (Configuration, error) {
	var cfg Configuration
	if _, err := toml.DecodeFile(confPath, &cfg); err != nil {
		return cfg, fmt.Errorf("configuration `%s`: %w", confPath, err)
	}

	confDir := path.Dir(confPath)
	folders := []*fsutil.Path{
		&cfg.Folders.WPSPrg,
		&cfg.Folders.WRFPrg,
		&cfg.Folders.ChemPrg,
		&cfg.Folders.NamelistsDir,
		&cfg.Folders.GeogDataDir,
		&cfg.Folders.InputArchive,
		&cfg.Folders.ChemInputDir,
		&cfg.Folders.WorkRoot,
		&cfg.Folders.OutputRoot,
	}
	for _, p := range folders {
		if *p != "" && !path.IsAbs(p.String()) {
			*p = fsutil.Path(confDir).JoinP(*p)
		}
	}
	for i, s := range cfg.Folders.OceanScripts {
		if s != "" && !path.IsAbs(s.String()) {
			cfg.Folders.OceanScripts[i] = fsutil.Path(confDir).JoinP(s)
		}
	}

	if cfg.Staging.StaleAfter.Duration == 0 {
		cfg.Staging.StaleAfter.Duration = DefaultStaleAfter
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration `%s`: %w", confPath, err)
	}
	return cfg, nil
}

// Validate applies the path and policy checks. It does no I/O.
func (c *Configuration) Validate() error {
	named := map[string]string{
		"Folders.WPSPrg":       c.Folders.WPSPrg.String(),
		"Folders.WRFPrg":       c.Folders.WRFPrg.String(),
		"Folders.NamelistsDir": c.Folders.NamelistsDir.String(),
		"Folders.InputArchive": c.Folders.InputArchive.String(),
		"Folders.WorkRoot":     c.Folders.WorkRoot.String(),
		"Folders.OutputRoot":   c.Folders.OutputRoot.String(),
		"Staging.RunID":        c.Staging.RunID,
	}
	for name, value := range named {
		if err := validate.CheckPath(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	// Optional folders may be empty but not malformed: ChemPrg and
	// ChemInputDir are unused in meteo-only runs, GeogDataDir when the
	// static grids are pre-built.
	optional := map[string]string{
		"Folders.ChemPrg":      c.Folders.ChemPrg.String(),
		"Folders.GeogDataDir":  c.Folders.GeogDataDir.String(),
		"Folders.ChemInputDir": c.Folders.ChemInputDir.String(),
	}
	for name, value := range optional {
		if value == "" {
			continue
		}
		if err := validate.CheckPath(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	for i, s := range c.Folders.OceanScripts {
		if err := validate.CheckPath(s.String()); err != nil {
			return fmt.Errorf("Folders.OceanScripts[%d]: %w", i, err)
		}
	}

	switch c.Staging.OnExistingOutput {
	case "", "error", "purge":
	default:
		return fmt.Errorf("Staging.OnExistingOutput: %q is not `error` or `purge`", c.Staging.OnExistingOutput)
	}

	if _, err := namelist.StyleByName(c.Staging.PlaceholderStyle); err != nil {
		return fmt.Errorf("Staging.PlaceholderStyle: %w", err)
	}

	for _, b := range c.BenignExits {
		if b.Executable == "" {
			return fmt.Errorf("BenignExits: entry without Executable")
		}
		for _, code := range b.Codes {
			if code == 0 {
				return fmt.Errorf("BenignExits: %s whitelists exit 0, which is always a success", b.Executable)
			}
		}
	}

	return nil
}

// PlaceholderStyle returns the configured namelist token style.
func (c *Configuration) PlaceholderStyle() namelist.Style {
	style, err := namelist.StyleByName(c.Staging.PlaceholderStyle)
	if err != nil {
		// Validate already rejected unknown names.
		panic(err)
	}
	return style
}

// NamelistFile returns the path of a namelist template.
func (c *Configuration) NamelistFile(source string) fsutil.Path {
	return c.Folders.NamelistsDir.Join(source)
}
