package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yousifm93/income-engine/internal/models"
)

// RequirementGroup is one required-document rule for a loan program. The
// requirement is satisfied when a success-status document of any listed type
// exists for the borrower. Groups flagged WhenSelfEmployed apply only when
// the borrower's file contains self-employment documents.
type RequirementGroup struct {
	Name             string                `yaml:"name"`
	AnyOf            []models.DocumentType `yaml:"any_of"`
	WhenSelfEmployed bool                  `yaml:"when_self_employed"`
}

// Label renders the group as a human-readable missing-input entry
func (g RequirementGroup) Label() string {
	parts := make([]string, len(g.AnyOf))
	for i, t := range g.AnyOf {
		parts[i] = string(t)
	}
	return strings.Join(parts, " or ")
}

// Requirements maps loan programs to their required document groups
type Requirements struct {
	Programs map[string][]RequirementGroup `yaml:"programs"`
}

// Groups returns the requirement groups for a program; ok is false when the
// program is not configured
func (r *Requirements) Groups(program string) ([]RequirementGroup, bool) {
	groups, ok := r.Programs[program]
	return groups, ok
}

// DefaultRequirements returns the built-in document requirements table
func DefaultRequirements() *Requirements {
	return &Requirements{
		Programs: map[string][]RequirementGroup{
			"conventional": {
				{Name: "employment income", AnyOf: []models.DocumentType{models.DocTypePayStub, models.DocTypeW2}},
				{Name: "self-employment returns", AnyOf: []models.DocumentType{models.DocTypeScheduleC}, WhenSelfEmployed: true},
			},
			"fha": {
				{Name: "employment income", AnyOf: []models.DocumentType{models.DocTypePayStub, models.DocTypeW2}},
				{Name: "employment verification", AnyOf: []models.DocumentType{models.DocTypeVOE}},
				{Name: "self-employment returns", AnyOf: []models.DocumentType{models.DocTypeScheduleC}, WhenSelfEmployed: true},
			},
			"va": {
				{Name: "employment income", AnyOf: []models.DocumentType{models.DocTypePayStub, models.DocTypeW2}},
				{Name: "employment verification", AnyOf: []models.DocumentType{models.DocTypeVOE}},
			},
			"jumbo": {
				{Name: "employment income", AnyOf: []models.DocumentType{models.DocTypePayStub, models.DocTypeW2}},
				{Name: "personal returns", AnyOf: []models.DocumentType{models.DocType1040}},
				{Name: "self-employment returns", AnyOf: []models.DocumentType{models.DocTypeScheduleC, models.DocTypeK1}, WhenSelfEmployed: true},
			},
		},
	}
}

// LoadRequirements reads the requirements table, applying a YAML file over
// the built-in defaults when path is non-empty. Programs present in the file
// replace the default entry wholesale.
func LoadRequirements(path string) (*Requirements, error) {
	reqs := DefaultRequirements()
	if path == "" {
		return reqs, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read requirements file: %w", err)
	}

	var fileReqs Requirements
	if err := yaml.Unmarshal(raw, &fileReqs); err != nil {
		return nil, fmt.Errorf("parse requirements file: %w", err)
	}

	for program, groups := range fileReqs.Programs {
		reqs.Programs[program] = groups
	}

	return reqs, nil
}
