package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario. A scenario builds a
// graph fixture (users, orgs, records) under symbolic names, then runs
// gateway queries as various principals and asserts on the results.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Users to create before the queries run.
	Users []UserDef `yaml:"users,omitempty"`

	// Orgs to create. Admin and member entries refer to user names.
	Orgs []OrgDef `yaml:"orgs,omitempty"`

	// Attributes to materialize.
	Attributes []AttributeDef `yaml:"attributes,omitempty"`

	// Objects to materialize. Children refer to earlier record names.
	Objects []ObjectDef `yaml:"objects,omitempty"`

	// Events to materialize. Org refers to an org name.
	Events []EventDef `yaml:"events,omitempty"`

	// Revocations applied after setup, before the queries.
	Revoke []RevokeDef `yaml:"revoke,omitempty"`

	// Queries to run through the gateway, in order.
	Queries []QueryDef `yaml:"queries"`
}

// UserDef declares a user under a symbolic name.
type UserDef struct {
	Name         string `yaml:"name"`
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"`
	DisplayName  string `yaml:"display_name"`
}

// OrgDef declares an org under a symbolic name.
type OrgDef struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	Admins      []string `yaml:"admins"`
	Members     []string `yaml:"members,omitempty"`
}

// AttributeDef declares an attribute. Value is the scalar as JSON.
type AttributeDef struct {
	Name    string `yaml:"name"`
	SubType string `yaml:"sub_type"`
	Value   string `yaml:"value"`
}

// ObjectDef declares an object over earlier records.
type ObjectDef struct {
	Name     string   `yaml:"name"`
	SubType  string   `yaml:"sub_type"`
	Children []string `yaml:"children"`
}

// EventDef declares an event owned by an org.
type EventDef struct {
	Name      string   `yaml:"name"`
	SubType   string   `yaml:"sub_type"`
	Org       string   `yaml:"org"`
	Timestamp int64    `yaml:"timestamp"`
	Children  []string `yaml:"children"`
}

// RevokeDef removes a user from an org's ACL during setup.
type RevokeDef struct {
	Org  string `yaml:"org"`
	User string `yaml:"user"`
}

// QueryDef runs one gateway query and asserts on its outcome. Filter
// values that match a defined name are resolved to that record's hash
// before the query runs.
type QueryDef struct {
	// As is the querying principal: a user name from the scenario, or
	// a literal email for unknown-principal cases.
	As string `yaml:"as"`

	// Filter is the query filter. Scalars mean equality, lists mean
	// membership.
	Filter map[string]any `yaml:"filter"`

	// ExpectEvents names the expected result records, order-free.
	ExpectEvents []string `yaml:"expect_events,omitempty"`

	// ExpectError names the expected typed failure:
	// "conflicting_filter" or "invalid_principal".
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Expectable error names.
const (
	ExpectConflictingFilter = "conflicting_filter"
	ExpectInvalidPrincipal  = "invalid_principal"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected to catch typos in scenario files.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Name == "" {
		return nil, fmt.Errorf("scenario missing required field: name")
	}
	if len(scenario.Queries) == 0 {
		return nil, fmt.Errorf("scenario %q has no queries", scenario.Name)
	}
	for i, q := range scenario.Queries {
		if q.As == "" {
			return nil, fmt.Errorf("scenario %q: query %d missing 'as'", scenario.Name, i)
		}
		if q.ExpectError != "" && q.ExpectError != ExpectConflictingFilter && q.ExpectError != ExpectInvalidPrincipal {
			return nil, fmt.Errorf("scenario %q: query %d: unknown expect_error %q", scenario.Name, i, q.ExpectError)
		}
	}
	return &scenario, nil
}
