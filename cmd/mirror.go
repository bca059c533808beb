package main

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/okandolu/hae-gpt/internal/chromemdb"
	"github.com/okandolu/hae-gpt/internal/db"
	"github.com/okandolu/hae-gpt/internal/vectorindex"
)

type mirrorTargets struct {
	chromem  bool
	postgres bool
	reset    bool
}

// openChromem opens the chromem mirror. An in-memory mirror is restored from
// its export file when one exists.
func openChromem() (*chromemdb.Mirror, error) {
	m, err := chromemdb.NewMirror(&cfg.Mirror.Chromem)
	if err != nil {
		return nil, err
	}
	if cfg.Mirror.Chromem.InMemory {
		if _, err := os.Stat(m.ExportPath()); err == nil {
			if err := m.Import(); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// syncMirrors copies entries into the enabled mirror stores.
func syncMirrors(ctx context.Context, entries []vectorindex.Entry, t mirrorTargets) error {
	var errs []error

	if t.chromem {
		if err := syncChromem(ctx, entries, t.reset); err != nil {
			log.Error().Err(err).Msg("Error mirroring into chromem")
			errs = append(errs, err)
		}
	}
	if t.postgres {
		if err := syncPostgres(ctx, entries, t.reset); err != nil {
			log.Error().Err(err).Msg("Error mirroring into postgres")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func syncChromem(ctx context.Context, entries []vectorindex.Entry, reset bool) error {
	m, err := openChromem()
	if err != nil {
		return err
	}
	if reset {
		if err := m.Reset(); err != nil {
			return err
		}
	}
	skipped, err := m.Store(ctx, entries)
	if err != nil {
		return err
	}
	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Msg("Zero vectors not mirrored into chromem")
	}
	if cfg.Mirror.Chromem.InMemory {
		return m.Export()
	}
	return nil
}

func syncPostgres(ctx context.Context, entries []vectorindex.Entry, reset bool) error {
	store, err := db.Open(&cfg.Mirror.Postgres)
	if err != nil {
		return err
	}
	defer store.Close()

	if reset {
		if err := store.DropTable(ctx); err != nil {
			return err
		}
	}
	if err := store.InitDB(ctx); err != nil {
		return err
	}
	skipped, err := store.StoreEntries(ctx, entries)
	if err != nil {
		return err
	}
	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Msg("Zero vectors not mirrored into postgres")
	}
	return nil
}

// deleteFromMirrors removes a source from the enabled mirror stores.
func deleteFromMirrors(ctx context.Context, source string) error {
	var errs []error

	if cfg.Mirror.Chromem.Enabled {
		m, err := openChromem()
		if err == nil {
			err = m.DeleteBySource(ctx, source)
		}
		if err == nil && cfg.Mirror.Chromem.InMemory {
			err = m.Export()
		}
		errs = append(errs, err)
	}
	if cfg.Mirror.Postgres.Enabled {
		store, err := db.Open(&cfg.Mirror.Postgres)
		if err == nil {
			var n int64
			n, err = store.DeleteBySource(ctx, source)
			store.Close()
			log.Info().Int64("removed", n).Msg("Deleted source from postgres")
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
