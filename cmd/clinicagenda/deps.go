package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/urfave/cli/v2"

	"github.com/guilherme-santos/clinicagenda/calendar"
	"github.com/guilherme-santos/clinicagenda/calendar/caldav"
	"github.com/guilherme-santos/clinicagenda/calendar/google"
	"github.com/guilherme-santos/clinicagenda/file"
	"github.com/guilherme-santos/clinicagenda/internal"
	"github.com/guilherme-santos/clinicagenda/internal/sqlite"
	"github.com/guilherme-santos/clinicagenda/internal/syncer"
)

const (
	googleProvider = "google"
	caldavProvider = "caldav"
)

type deps struct {
	cfg    *file.Config
	logger *slog.Logger
	db     *sql.DB
	google *google.Client
	syncer *syncer.Syncer
}

func newDeps(c *cli.Context) (*deps, error) {
	cfg, err := file.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if v := c.String("db"); v != "" {
		cfg.Database = v
	}
	if v := c.String("addr"); v != "" {
		cfg.ListenAddr = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if c.Bool("verbose") {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &deps{
		cfg:    cfg,
		logger: internal.NewLogger(os.Stderr, cfg.LogLevel),
	}

	d.db, err = sql.Open(sqlite.DriverName, cfg.Database)
	if err != nil {
		return nil, err
	}
	storage := sqlite.NewStorage(d.db)

	mux, err := d.newMux()
	if err != nil {
		d.db.Close()
		return nil, err
	}
	provider, err := mux.Get(cfg.Provider)
	if err != nil {
		d.db.Close()
		return nil, err
	}
	auth, err := mux.Authorizer(cfg.Provider)
	if err != nil {
		d.db.Close()
		return nil, err
	}

	d.syncer = syncer.New(d.logger, provider, auth, storage, cfg.TokenKey)
	d.syncer.DaysAhead = cfg.DaysAhead
	if cfg.Provider == googleProvider {
		d.syncer.Scopes = google.DefaultScopes
	}
	return d, nil
}

func (d *deps) newMux() (*calendar.Mux, error) {
	mux := calendar.NewMux()

	switch d.cfg.Provider {
	case googleProvider:
		googleCal, err := d.newGoogleClient()
		if err != nil {
			return nil, err
		}
		d.google = googleCal
		mux.Register(googleProvider, googleCal)
	case caldavProvider:
		dav := d.cfg.CalDAV
		mux.Register(caldavProvider, caldav.NewClient(dav.URL, dav.Username, dav.Password, d.cfg.Palette, d.logger))
	}
	return mux, nil
}

func (d *deps) newGoogleClient() (*google.Client, error) {
	redirectURL := d.cfg.Google.RedirectURL
	if redirectURL == "" {
		redirectURL = localCallbackURL(d.cfg.ListenAddr)
	}

	credJSON, err := d.cfg.GoogleCredentials()
	if err != nil {
		return nil, err
	}
	if credJSON == nil {
		cfg := google.NewConfig(d.cfg.Google.ClientID, d.cfg.Google.ClientSecret, redirectURL)
		return google.NewClientFromConfig(cfg, d.logger), nil
	}

	googleCal, err := google.NewClient(credJSON, d.logger)
	if err != nil {
		return nil, fmt.Errorf("creating client: %v", err)
	}
	googleCal.SetRedirectURL(redirectURL)
	return googleCal, nil
}

func localCallbackURL(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		port = "8080"
	}
	return "http://localhost:" + port + google.CallbackPath
}

func (d *deps) Close() error {
	d.syncer.Wait()
	return d.db.Close()
}
