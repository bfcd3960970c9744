// Game metadata tools backed by the resolver pipeline
package tools

import (
	"context"
	"log"
	"time"

	"github.com/gamedex/gamedex/resolver"
)

// LookupRecorder records resolved lookups for the history endpoint.
// Implemented by storage.Storage.
type LookupRecorder interface {
	RecordLookup(name, title, view, kind string) error
}

// GameTool resolves one view (genres, story, developer) of a game's
// metadata. Failures are returned as descriptive strings, never as
// errors, so the model can relay them to the user.
type GameTool struct {
	resolver *resolver.Resolver
	view     resolver.View
	recorder LookupRecorder // optional
	timeout  time.Duration
}

// NewGameTool creates a game tool for the given view
func NewGameTool(res *resolver.Resolver, view resolver.View, recorder LookupRecorder) *GameTool {
	return &GameTool{
		resolver: res,
		view:     view,
		recorder: recorder,
		timeout:  30 * time.Second,
	}
}

// RegisterGameTools registers the three game tools on a registry
func RegisterGameTools(r *Registry, res *resolver.Resolver, recorder LookupRecorder) {
	r.Register(NewGameTool(res, resolver.ViewGenres, recorder))
	r.Register(NewGameTool(res, resolver.ViewStory, recorder))
	r.Register(NewGameTool(res, resolver.ViewDeveloper, recorder))
}

func (t *GameTool) Name() string {
	switch t.view {
	case resolver.ViewGenres:
		return "game_genres"
	case resolver.ViewStory:
		return "game_story"
	case resolver.ViewDeveloper:
		return "game_developer"
	}
	return "game_" + string(t.view)
}

func (t *GameTool) Description() string {
	switch t.view {
	case resolver.ViewGenres:
		return "Look up the genres of a video game by name"
	case resolver.ViewStory:
		return "Get a short story/plot summary of a video game by name"
	case resolver.ViewDeveloper:
		return "Find out who developed a video game, with supporting context"
	}
	return "Look up video game metadata"
}

func (t *GameTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Name of the video game, e.g. \"Hades\"",
			},
		},
		"required": []string{"name"},
	}
}

func (t *GameTool) Execute(args map[string]interface{}) (interface{}, error) {
	name := GetString(args, "name")

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	res := t.resolver.Resolve(ctx, name, t.view)

	if t.recorder != nil && res.Kind != resolver.KindInvalidInput {
		if err := t.recorder.RecordLookup(res.Name, res.Title, string(res.View), string(res.Kind)); err != nil {
			log.Printf("[TOOL] failed to record lookup: %v", err)
		}
	}

	return res.String(), nil
}

var _ Tool = (*GameTool)(nil)
