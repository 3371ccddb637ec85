package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// Profile points the CLI at one upstream environment.
type Profile struct {
	Name         string
	BaseURL      string
	FarmInputsID string
	ProgressID   string
	Username     string
}

// Profiles reads upstream environments from an ini file where every section
// with keys is a profile:
//
//	[dev]
//	base_url       = https://example.org/api/v4
//	farm_inputs_id = 23e9...
//	progress_id    = de19...
//	username       = tecnico
type Profiles struct {
	cfg *ini.File
}

func DefaultProfilesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sonilcfg"
	}
	return filepath.Join(home, ".sonilcfg")
}

func LoadProfiles(path string) (*Profiles, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load profiles %s: %w", path, err)
	}
	return &Profiles{cfg: cfg}, nil
}

func (p *Profiles) Names() []string {
	var names []string
	for _, section := range p.cfg.Sections() {
		if len(section.Keys()) > 0 {
			names = append(names, section.Name())
		}
	}
	return names
}

func (p *Profiles) Get(name string) (Profile, error) {
	section, err := p.cfg.GetSection(name)
	if err != nil || len(section.Keys()) == 0 {
		return Profile{}, fmt.Errorf("profile %s not found", name)
	}

	profile := Profile{
		Name:         name,
		BaseURL:      strings.TrimSpace(section.Key("base_url").String()),
		FarmInputsID: strings.TrimSpace(section.Key("farm_inputs_id").String()),
		ProgressID:   strings.TrimSpace(section.Key("progress_id").String()),
		Username:     strings.TrimSpace(section.Key("username").String()),
	}
	if profile.BaseURL == "" {
		return Profile{}, fmt.Errorf("profile %s has no base_url", name)
	}
	return profile, nil
}
