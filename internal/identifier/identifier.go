// Package identifier maps running programs to tracked UserApps.
//
// Each strategy implements Identifier. Strategies are registered explicitly
// in a Registry, which the tracker consults once per idle poll.
package identifier

import (
	"context"

	"github.com/playtrack/playtrack/internal/models"
	"github.com/playtrack/playtrack/pkg/procscan"

	"github.com/rs/zerolog/log"
)

// UnboundMatch is a running program that could be registered as a UserApp.
type UnboundMatch struct {
	Note             string `json:"note"`
	IdentifierPlugin string `json:"identifier_plugin"`
	IdentifierData   string `json:"identifier_data"`
}

// Match pairs a live program with the UserApp it was identified as.
type Match struct {
	Handle  procscan.Handle
	UserApp *models.UserApp
}

// Identifier is a matching strategy.
type Identifier interface {
	// Name is stored in UserApp.IdentifierPlugin.
	Name() string

	// Candidates lists running programs that are not tracked yet. It never
	// fails; problems with single entries are logged and the entry skipped.
	Candidates(ctx context.Context) []UnboundMatch

	// IdentifyGame returns the oldest running program that matches a
	// tracked UserApp, or nil when nothing matches.
	IdentifyGame(ctx context.Context) (*Match, error)

	// ClearCache drops memoized UserApp data. Call it after UserApps change.
	ClearCache()
}

// SettingsReloader is implemented by identifiers with runtime settings.
type SettingsReloader interface {
	ReloadSettings()
}

// UserAppStore is the part of the registry the identifiers read.
type UserAppStore interface {
	FindUserAppsByPlugin(pluginName string) ([]models.UserApp, error)
}

// ListSettings reads list-valued settings for one owner.
type ListSettings interface {
	GetList(key string) ([]string, error)
}

// Registry holds the identifiers in the order they are consulted.
type Registry struct {
	identifiers []Identifier
}

func NewRegistry(identifiers ...Identifier) *Registry {
	return &Registry{identifiers: identifiers}
}

func (r *Registry) Identifiers() []Identifier {
	return r.identifiers
}

// Identify asks each identifier in turn. The first match wins. A failing
// identifier is logged and skipped; its error is returned only when no
// identifier matched.
func (r *Registry) Identify(ctx context.Context) (*Match, error) {
	var firstErr error
	for _, id := range r.identifiers {
		m, err := id.IdentifyGame(ctx)
		if err != nil {
			log.Warn().Err(err).Str("identifier", id.Name()).Msg("identification failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if m != nil {
			return m, nil
		}
	}
	return nil, firstErr
}

// Candidates concatenates the candidates of every identifier.
func (r *Registry) Candidates(ctx context.Context) []UnboundMatch {
	var all []UnboundMatch
	for _, id := range r.identifiers {
		all = append(all, id.Candidates(ctx)...)
	}
	return all
}

func (r *Registry) ClearAll() {
	for _, id := range r.identifiers {
		id.ClearCache()
	}
}

func (r *Registry) ReloadSettings() {
	for _, id := range r.identifiers {
		if rl, ok := id.(SettingsReloader); ok {
			rl.ReloadSettings()
		}
	}
}
