package scraper

import (
	"errors"
	"strings"

	"github.com/mkjhawar/NewAvanues-sub007/internal/logging"
	"github.com/mkjhawar/NewAvanues-sub007/internal/store"
	"github.com/mkjhawar/NewAvanues-sub007/internal/synth"
	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
)

// CommandsForApp lists every command generated for an application
func (s *Scraper) CommandsForApp(appID string) ([]*types.Command, error) {
	return s.store.CommandsForApp(appID)
}

// FindCommand resolves a recognized phrase to a command: exact text first,
// then the alias table, then best-similarity above the configured threshold.
// Returns store.ErrNotFound when nothing clears the bar.
func (s *Scraper) FindCommand(phrase string) (*types.Command, error) {
	phrase = normalize(phrase)
	if phrase == "" {
		return nil, store.ErrNotFound
	}

	if cmd, err := s.store.CommandByExactText(phrase); err == nil {
		return cmd, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if cmd, err := s.store.CommandByAlias(phrase); err == nil {
		return cmd, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	all, err := s.store.AllCommands()
	if err != nil {
		return nil, err
	}
	var best *types.Command
	bestScore := 0.0
	for _, cmd := range all {
		score := synth.Similarity(phrase, cmd.Text)
		for _, alias := range cmd.Synonyms {
			if as := synth.Similarity(phrase, alias); as > score {
				score = as
			}
		}
		if score > bestScore {
			best, bestScore = cmd, score
		}
	}
	if best == nil || bestScore < s.cfg.SimilarityThreshold {
		return nil, store.ErrNotFound
	}
	logging.Debug("scraper", "fuzzy matched %q to %q (%.2f)", phrase, best.Text, bestScore)
	return best, nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
