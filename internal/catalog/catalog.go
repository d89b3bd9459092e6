// Package catalog provides the activity seed used to populate the directory at startup.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/signup/internal/domain"
)

// Entry is the YAML representation of a seeded activity.
type Entry struct {
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	Schedule        string   `yaml:"schedule"`
	MaxParticipants int      `yaml:"max_participants"`
	Participants    []string `yaml:"participants"`
}

type file struct {
	Activities []Entry `yaml:"activities"`
}

// Load returns the seed at path, or the built-in Default when path is empty.
func Load(path string) ([]domain.Activity, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML seed document.
func Parse(data []byte) ([]domain.Activity, error) {
	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(doc.Activities) == 0 {
		return nil, errors.New("seed file defines no activities")
	}

	out := make([]domain.Activity, 0, len(doc.Activities))
	names := make(map[string]struct{}, len(doc.Activities))
	for i, entry := range doc.Activities {
		if err := entry.validate(); err != nil {
			return nil, fmt.Errorf("activity %d: %w", i, err)
		}
		if _, dup := names[entry.Name]; dup {
			return nil, fmt.Errorf("activity %q defined twice", entry.Name)
		}
		names[entry.Name] = struct{}{}
		out = append(out, domain.Activity{
			Name:            entry.Name,
			Description:     entry.Description,
			Schedule:        entry.Schedule,
			MaxParticipants: entry.MaxParticipants,
			Participants:    append([]string(nil), entry.Participants...),
		})
	}
	return out, nil
}

func (e Entry) validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("name is required")
	}
	if e.MaxParticipants <= 0 {
		return fmt.Errorf("%q: max_participants must be > 0", e.Name)
	}
	seen := make(map[string]struct{}, len(e.Participants))
	for _, email := range e.Participants {
		if _, dup := seen[email]; dup {
			return fmt.Errorf("%q: participant %s listed twice", e.Name, email)
		}
		seen[email] = struct{}{}
	}
	return nil
}

// Default returns the built-in Mergington High School activities.
func Default() []domain.Activity {
	return []domain.Activity{
		{
			Name:            "Chess Club",
			Description:     "Learn strategies and compete in chess tournaments",
			Schedule:        "Fridays, 3:30 PM - 5:00 PM",
			MaxParticipants: 12,
			Participants:    []string{"michael@mergington.edu", "daniel@mergington.edu"},
		},
		{
			Name:            "Programming Class",
			Description:     "Learn programming fundamentals and build software projects",
			Schedule:        "Tuesdays and Thursdays, 3:30 PM - 4:30 PM",
			MaxParticipants: 20,
			Participants:    []string{"emma@mergington.edu", "sophia@mergington.edu"},
		},
		{
			Name:            "Gym Class",
			Description:     "Physical education and sports activities",
			Schedule:        "Mondays, Wednesdays, Fridays, 2:00 PM - 3:00 PM",
			MaxParticipants: 30,
			Participants:    []string{"john@mergington.edu", "olivia@mergington.edu"},
		},
		{
			Name:            "Basketball Team",
			Description:     "Competitive basketball training and inter-school games",
			Schedule:        "Tuesdays and Thursdays, 4:00 PM - 6:00 PM",
			MaxParticipants: 15,
			Participants:    []string{"liam@mergington.edu"},
		},
		{
			Name:            "Soccer Club",
			Description:     "Team practice, drills, and weekend matches",
			Schedule:        "Wednesdays, 3:30 PM - 5:30 PM",
			MaxParticipants: 22,
			Participants:    []string{"noah@mergington.edu", "ava@mergington.edu"},
		},
		{
			Name:            "Art Club",
			Description:     "Explore drawing, painting, and mixed media projects",
			Schedule:        "Mondays, 3:30 PM - 5:00 PM",
			MaxParticipants: 18,
			Participants:    []string{"isabella@mergington.edu"},
		},
		{
			Name:            "Drama Club",
			Description:     "Acting workshops and the spring school play",
			Schedule:        "Thursdays, 3:30 PM - 5:30 PM",
			MaxParticipants: 25,
			Participants:    []string{"mia@mergington.edu", "ethan@mergington.edu"},
		},
		{
			Name:            "Math Club",
			Description:     "Problem solving and preparation for math competitions",
			Schedule:        "Tuesdays, 3:30 PM - 4:30 PM",
			MaxParticipants: 16,
			Participants:    []string{"lucas@mergington.edu"},
		},
		{
			Name:            "Debate Team",
			Description:     "Public speaking practice and regional debate tournaments",
			Schedule:        "Fridays, 4:00 PM - 5:30 PM",
			MaxParticipants: 14,
			Participants:    []string{"amelia@mergington.edu", "james@mergington.edu"},
		},
	}
}
