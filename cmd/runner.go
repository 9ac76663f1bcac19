package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dynlist/internal/repositories"
	"github.com/desertthunder/dynlist/internal/services"
	"github.com/desertthunder/dynlist/internal/shared"
	"github.com/desertthunder/dynlist/internal/tasks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The store and the music server connection are opened lazily, so commands that only
// touch the local store never dial the server.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	registry   *prometheus.Registry

	db        *sql.DB
	playlists *repositories.DynamicPlaylistRepository
	runs      *repositories.RefreshRunRepository
	library   services.Library
	engine    *tasks.PlaylistEngine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	DB         *sql.DB          // Opened from config when nil
	Library    services.Library // Dialed from config when nil
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		registry:   prometheus.NewRegistry(),
		db:         opts.DB,
		library:    opts.Library,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, playlistCommand, importCommand, exportCommand, previewCommand,
		refreshCommand, runsCommand, daemonCommand, remoteCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig replaces the defaults with the file named by --config when it exists.
func (r *Runner) loadConfig(cmd *cli.Command) error {
	path := r.configPath
	if cmd != nil && cmd.IsSet("config") {
		path = cmd.String("config")
	}
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		if cmd != nil && cmd.IsSet("config") {
			return fmt.Errorf("%w: %s", shared.ErrMissingConfig, path)
		}
		r.logger.Debug("config file not found, using defaults", "path", path)
		return nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return err
	}
	r.config = config
	r.configPath = path
	r.logger.SetLevel(shared.ParseLogLevel(config.Log.Level))
	return nil
}

// openStore opens the database, applies pending migrations and builds the repositories.
func (r *Runner) openStore(cmd *cli.Command) error {
	if r.playlists != nil {
		return nil
	}
	if err := r.openDatabase(cmd); err != nil {
		return err
	}

	if err := shared.RunMigrations(r.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.playlists = repositories.NewDynamicPlaylistRepository(r.db)
	r.runs = repositories.NewRefreshRunRepository(r.db)
	return nil
}

// openDatabase opens the configured database without migrating it.
func (r *Runner) openDatabase(cmd *cli.Command) error {
	if r.db != nil {
		return nil
	}
	if err := r.loadConfig(cmd); err != nil {
		return err
	}
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	r.db = db
	return nil
}

// connect opens the store and the music server connection and builds the engine.
func (r *Runner) connect(cmd *cli.Command) error {
	if err := r.openStore(cmd); err != nil {
		return err
	}
	if r.engine != nil {
		return nil
	}

	if r.library == nil {
		mpd := r.config.MPD
		r.library = services.NewMPD(services.MPDOptions{
			Network:           mpd.Network,
			Address:           mpd.Address,
			Password:          mpd.Password,
			RequestsPerSecond: mpd.RequestsPerSecond,
			Burst:             mpd.Burst,
			Logger:            r.logger,
			Metrics:           services.NewMetrics(r.registry),
		})
	}

	r.engine = tasks.NewPlaylistEngine(tasks.EngineOpts{
		Library:   r.library,
		Playlists: r.playlists,
		Runs:      r.runs,
		Verify:    r.config.Materializer.Verify,
		Logger:    r.logger,
	})
	return nil
}

// Close releases the connection and the database.
func (r *Runner) Close() error {
	var errs []error
	if r.library != nil {
		if err := r.library.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close runner: %v", errs)
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
