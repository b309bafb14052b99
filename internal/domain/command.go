package domain

import (
	"net/url"
	"strings"
)

// EndpointSlot is the substitution marker in a command endpoint template.
// Every valid CommandSpec endpoint contains it exactly once.
const EndpointSlot = "{}"

// CommandSpec describes one lookup command. Specs are loaded from the
// registry file at startup and never change during the process lifetime.
type CommandSpec struct {
	Name            string   `yaml:"name" json:"name"`
	Endpoint        string   `yaml:"endpoint" json:"endpoint"`
	Param           string   `yaml:"param" json:"param"`
	Desc            string   `yaml:"desc" json:"desc"`
	AuditChannel    int64    `yaml:"audit_channel" json:"audit_channel"`
	ExtraRedactions []string `yaml:"extra_redactions,omitempty" json:"extra_redactions,omitempty"`
	DropFields      []string `yaml:"drop_fields,omitempty" json:"drop_fields,omitempty"`
	ResolveUsername bool     `yaml:"resolve_username,omitempty" json:"resolve_username,omitempty"`
}

// URL expands the endpoint template with the user query. The query is
// percent-encoded; the template slot is filled exactly once.
func (c CommandSpec) URL(query string) string {
	return strings.Replace(c.Endpoint, EndpointSlot, url.QueryEscape(query), 1)
}
