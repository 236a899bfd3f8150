// Package station stores OSCE stations: the admin-authored script, the
// five-minute question and its follow-up rules.
package station

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/osce-practice-platform/internal/dialogue"
)

// ErrNotFound is returned when no station exists for an ID.
var ErrNotFound = errors.New("station: not found")

// Station is one simulated encounter scenario.
type Station struct {
	ID                 string                    `json:"id"`
	Title              string                    `json:"title"`
	Script             string                    `json:"script"`
	FiveMinuteQuestion string                    `json:"five_minute_question,omitempty"`
	FiveMinuteRules    *dialogue.FiveMinuteRules `json:"five_minute_rules,omitempty"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

// ParsedScript parses the station script. A nil station yields an empty script.
func (s *Station) ParsedScript() *dialogue.Script {
	if s == nil {
		return dialogue.ParseScript("")
	}
	return dialogue.ParseScript(s.Script)
}

// Validate checks the fields an editor must supply.
func (s *Station) Validate() error {
	if s == nil {
		return errors.New("station: nil station")
	}
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("station: id required")
	}
	if strings.TrimSpace(s.Title) == "" {
		return errors.New("station: title required")
	}
	return nil
}

// Repository persists stations.
type Repository interface {
	Get(ctx context.Context, id string) (*Station, error)
	Put(ctx context.Context, st *Station) error
	List(ctx context.Context) ([]*Station, error)
	Delete(ctx context.Context, id string) error
}
