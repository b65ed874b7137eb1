package mockapi

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rflorenc/avi-test-automation/internal/models"
)

// User is a pre-registered account.
type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Fixture is the initial controller state.
type Fixture struct {
	Users           []User            `yaml:"users"`
	Tenants         []models.Resource `yaml:"tenants"`
	VirtualServices []models.Resource `yaml:"virtual_services"`
	ServiceEngines  []models.Resource `yaml:"service_engines"`
}

// DefaultFixture returns a small controller with one enabled virtual service
// named "test-vs".
func DefaultFixture() *Fixture {
	return &Fixture{
		Tenants: []models.Resource{
			{"name": "admin"},
		},
		VirtualServices: []models.Resource{
			{"name": "test-vs", "enabled": true},
			{"name": "web-vs", "enabled": true},
		},
		ServiceEngines: []models.Resource{
			{"name": "se-1"},
			{"name": "se-2"},
		},
	}
}

// LoadFixture reads a fixture from a YAML file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, nil
}
