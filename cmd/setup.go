package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/dynlist/internal/shared"
	"github.com/desertthunder/dynlist/internal/ui"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations. --status lists
// the migrations instead, and --rollback N reverts the newest N applied ones.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if err := r.openDatabase(cmd); err != nil {
		return err
	}

	switch {
	case cmd.IsSet("rollback"):
		return r.rollbackDatabase(int(cmd.Int("rollback")))
	case cmd.Bool("status"):
		return r.databaseStatus()
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	applied, err := shared.MigrateUp(r.db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, mig := range applied {
		r.logger.Info("migration applied", "migration", mig)
		r.writePlain("%s Applied %s\n", ui.Mark(true), mig)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("%s Database ready at %s\n", ui.Mark(true), r.config.Database.Path)
}

func (r *Runner) rollbackDatabase(steps int) error {
	if steps == 1 {
		mig, err := shared.RollbackMigration(r.db)
		if err != nil {
			return err
		}
		r.logger.Warn("migration reverted", "migration", mig)
		return r.writePlain("%s Reverted %s\n", ui.Mark(true), mig)
	}

	reverted, err := shared.MigrateDown(r.db, steps)
	for _, mig := range reverted {
		r.logger.Warn("migration reverted", "migration", mig)
		r.writePlain("%s Reverted %s\n", ui.Mark(true), mig)
	}
	return err
}

func (r *Runner) databaseStatus() error {
	statuses, err := shared.MigrationState(r.db)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		applied := ui.Warn("pending")
		if st.AppliedAt != nil {
			applied = st.AppliedAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{fmt.Sprintf("%04d", st.Version), st.Name, applied})
	}
	return r.writePlainln("%s", ui.Table([]string{"Version", "Name", "Applied"}, rows))
}

// SetupConfig writes the example configuration file.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if path == "" {
		return fmt.Errorf("%w: --output", shared.ErrMissingArgument)
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("%s Config written to %s\n", ui.Mark(true), path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set [mpd] address (and password) in %s\n", path)
	r.writePlain("2. Run 'dynlist setup database' then 'dynlist remote ping'\n")
	return nil
}
