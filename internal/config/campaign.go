package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Campaign describes one campaign run: the shared subject and HTML body, the
// CSV file holding recipients, and any attachment files. Either BodyHTML or
// BodyFile must be provided; BodyFile wins when both are set.
type Campaign struct {
	Subject       string   `yaml:"subject"`
	BodyHTML      string   `yaml:"body_html"`
	BodyFile      string   `yaml:"body_file"`
	RecipientsCSV string   `yaml:"recipients_csv"`
	Attachments   []string `yaml:"attachments"`
}

// LoadCampaign reads and validates a campaign definition from a YAML file.
// Relative paths inside the definition are resolved against the definition
// file's directory.
func LoadCampaign(path string) (*Campaign, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("campaign: read definition: %w", err)
	}

	var c Campaign
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("campaign: parse definition: %w", err)
	}

	base := filepath.Dir(path)
	c.BodyFile = resolvePath(base, c.BodyFile)
	c.RecipientsCSV = resolvePath(base, c.RecipientsCSV)
	for i, att := range c.Attachments {
		c.Attachments[i] = resolvePath(base, att)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	if c.BodyFile != "" {
		body, err := os.ReadFile(c.BodyFile)
		if err != nil {
			return nil, fmt.Errorf("campaign: read body file: %w", err)
		}
		c.BodyHTML = string(body)
	}

	return &c, nil
}

func (c *Campaign) validate() error {
	var errs []string
	if strings.TrimSpace(c.Subject) == "" {
		errs = append(errs, "subject is required")
	}
	if strings.TrimSpace(c.BodyHTML) == "" && strings.TrimSpace(c.BodyFile) == "" {
		errs = append(errs, "body_html or body_file is required")
	}
	if strings.TrimSpace(c.RecipientsCSV) == "" {
		errs = append(errs, "recipients_csv is required")
	}
	if len(errs) > 0 {
		return errors.New("campaign validation failed: " + strings.Join(errs, "; "))
	}
	return nil
}

func resolvePath(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
