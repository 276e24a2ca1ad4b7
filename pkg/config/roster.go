package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
)

// RosterProfile is a reviewer roster with its review policy. Profiles
// are the operator-managed source of truth for who may approve and
// how many approvals an operation needs.
type RosterProfile struct {
	Name                  string     `yaml:"name" json:"name"`
	RequiredApprovals     int        `yaml:"required_approvals" json:"required_approvals"`
	ModificationApprovals int        `yaml:"modification_approvals" json:"modification_approvals"`
	Timelock              string     `yaml:"timelock" json:"timelock"`
	Reviewers             []Reviewer `yaml:"reviewers" json:"reviewers"`
}

// Reviewer identifies one trusted review identity.
type Reviewer struct {
	ID   string `yaml:"id" json:"id"`
	Role string `yaml:"role,omitempty" json:"role,omitempty"`
}

// LoadRoster loads a roster profile from a YAML file.
func LoadRoster(path string) (*RosterProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load roster %q: %w", path, err)
	}

	var profile RosterProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse roster %q: %w", path, err)
	}

	if profile.RequiredApprovals == 0 {
		profile.RequiredApprovals = approval.DefaultRequiredApprovals
	}
	if profile.ModificationApprovals == 0 {
		profile.ModificationApprovals = approval.DefaultModificationApprovals
	}
	if profile.Timelock == "" {
		profile.Timelock = approval.DefaultTimelock.String()
	}

	return &profile, nil
}

// Validate checks the profile for operational consistency. A roster
// smaller than the elevated threshold would leave system-modifying
// operations permanently unvalidatable, so it is rejected here.
func (p *RosterProfile) Validate() error {
	if p.RequiredApprovals < 1 {
		return fmt.Errorf("roster %q: required_approvals must be at least 1", p.Name)
	}
	if p.ModificationApprovals < 0 {
		return fmt.Errorf("roster %q: modification_approvals must not be negative", p.Name)
	}
	d, err := p.timelock()
	if err != nil {
		return fmt.Errorf("roster %q: %w", p.Name, err)
	}
	if d <= 0 {
		return fmt.Errorf("roster %q: timelock must be positive", p.Name)
	}
	if len(p.Reviewers) == 0 {
		return fmt.Errorf("roster %q: at least one reviewer is required", p.Name)
	}

	seen := make(map[string]bool, len(p.Reviewers))
	for i, r := range p.Reviewers {
		if r.ID == "" {
			return fmt.Errorf("roster %q: reviewer %d has an empty id", p.Name, i)
		}
		if seen[r.ID] {
			return fmt.Errorf("roster %q: duplicate reviewer %q", p.Name, r.ID)
		}
		seen[r.ID] = true
	}

	if elevated := p.RequiredApprovals + p.ModificationApprovals; len(p.Reviewers) < elevated {
		return fmt.Errorf("roster %q: %d reviewers cannot reach the elevated threshold of %d",
			p.Name, len(p.Reviewers), elevated)
	}
	return nil
}

func (p *RosterProfile) timelock() (time.Duration, error) {
	d, err := time.ParseDuration(p.Timelock)
	if err != nil {
		return 0, fmt.Errorf("invalid timelock %q: %w", p.Timelock, err)
	}
	return d, nil
}

// ApprovalConfig converts the profile into a ledger configuration.
// Call Validate first; conversion assumes a well-formed profile.
func (p *RosterProfile) ApprovalConfig() approval.Config {
	d, _ := p.timelock()
	reviewers := make([]string, len(p.Reviewers))
	for i, r := range p.Reviewers {
		reviewers[i] = r.ID
	}
	return approval.Config{
		RequiredApprovals:     p.RequiredApprovals,
		ModificationApprovals: p.ModificationApprovals,
		Timelock:              d,
		Reviewers:             reviewers,
	}
}
