package spmedia

import (
	"context"
	"fmt"
	"sparsh/internal/models/splog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultGrace laisse le temps à un upload en cours d'insérer son enregistrement
const DefaultGrace = 10 * time.Minute

// ReferenceSource liste les fichiers encore référencés en base
type ReferenceSource func(ctx context.Context) ([]string, error)

// Sweeper supprime les fichiers stockés qu'aucun enregistrement ne référence
type Sweeper struct {
	store   *Store
	sources []ReferenceSource
	grace   time.Duration
	now     func() time.Time
	cron    *cron.Cron
	logger  zerolog.Logger
}

func NewSweeper(store *Store, sources ...ReferenceSource) *Sweeper {
	return &Sweeper{
		store:   store,
		sources: sources,
		grace:   DefaultGrace,
		now:     time.Now,
		logger:  splog.For("sweeper"),
	}
}

// Sweep renvoie le nombre de fichiers supprimés
func (w *Sweeper) Sweep(ctx context.Context) (int, error) {
	referenced := make(map[string]bool)
	for _, source := range w.sources {
		names, err := source(ctx)
		if err != nil {
			return 0, fmt.Errorf("liste des références: %w", err)
		}
		for _, n := range names {
			if n != "" {
				referenced[n] = true
			}
		}
	}

	files, err := w.store.List()
	if err != nil {
		return 0, fmt.Errorf("liste des fichiers: %w", err)
	}

	cutoff := w.now().Add(-w.grace)
	removed := 0
	for _, f := range files {
		if referenced[f.Name] || f.ModTime.After(cutoff) {
			continue
		}
		if err := w.store.Remove(f.Name); err != nil {
			w.logger.Error().Err(err).Str("file", f.Name).Msg("failed to remove orphaned file")
			continue
		}
		removed++
		w.logger.Info().Str("file", f.Name).Msg("orphaned file removed")
	}
	return removed, nil
}

// Start lance le nettoyage selon une expression cron (ex: @hourly)
func (w *Sweeper) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		n, err := w.Sweep(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("cleanup failed")
			return
		}
		w.logger.Info().Int("removed", n).Msg("cleanup completed")
	})
	if err != nil {
		return fmt.Errorf("planification %q: %w", schedule, err)
	}
	c.Start()
	w.cron = c
	return nil
}

// Stop attend la fin d'un nettoyage en cours
func (w *Sweeper) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}
