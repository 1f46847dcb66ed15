package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gridwatch/config"
	"gridwatch/internal/analyzer"
	"gridwatch/internal/database"
	"gridwatch/internal/models"
	"gridwatch/internal/monitor"
	"gridwatch/internal/notify"
	"gridwatch/internal/scraper"
	"gridwatch/internal/secrets"
	"gridwatch/logger"
)

func main() {
	var (
		configPath string
		once       bool
		search     string
		watchID    string
		unwatchID  string
		threshold  float64
		maxPrice   float64
		saveCreds  bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	flag.BoolVar(&once, "once", false, "run a single scan cycle and exit")
	flag.StringVar(&search, "search", "", "search the module catalog and exit")
	flag.StringVar(&watchID, "watch", "", "add a module to the watchlist by catalog id and exit")
	flag.StringVar(&unwatchID, "unwatch", "", "remove a module from the watchlist by catalog id and exit")
	flag.Float64Var(&threshold, "threshold", 0, "deal threshold in percent for -watch (0 = default)")
	flag.Float64Var(&maxPrice, "maxprice", 0, "absolute price cap for -watch (0 = none)")
	flag.BoolVar(&saveCreds, "save-credentials", false, "prompt for marketplace credentials, store them encrypted and exit")
	flag.Parse()

	// .env is optional, direct environment variables work the same way.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.MaxAgeDays); err != nil {
		fmt.Fprintf(os.Stderr, "configure logging: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithComponent("main")

	if saveCreds {
		if err := promptCredentials(cfg.Scraper.CredentialsPath); err != nil {
			log.WithError(err).Fatal("storing credentials failed")
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("opening store failed")
	}
	defer store.Close()

	if err := store.SeedPreferences(ctx, seedDefaults(cfg)); err != nil {
		log.WithError(err).Fatal("seeding preferences failed")
	}

	client, err := scraper.New(cfg.Scraper.BaseURL)
	if err != nil {
		log.WithError(err).Fatal("building marketplace client failed")
	}

	switch {
	case search != "":
		if err := runSearch(ctx, client, cfg, search); err != nil {
			log.WithError(err).Fatal("search failed")
		}
		return
	case watchID != "":
		if err := runWatch(ctx, store, watchID, threshold, maxPrice); err != nil {
			log.WithError(err).Fatal("watch failed")
		}
		return
	case unwatchID != "":
		if err := runUnwatch(ctx, store, unwatchID); err != nil {
			log.WithError(err).Fatal("unwatch failed")
		}
		return
	}

	var channels []notify.Channel
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.WithError(err).Fatal("telegram channel failed")
		}
		channels = append(channels, tg)
	}
	if cfg.Email.Enabled {
		channels = append(channels, notify.NewEmail(
			cfg.Email.SMTPHost, cfg.Email.SMTPPort,
			cfg.Email.Username, cfg.Email.Password,
			cfg.Email.From, splitList(cfg.Email.To),
		))
	}
	if len(channels) == 0 {
		log.Warn("no notification channels configured, deals will only be recorded")
	}

	m := monitor.New(store, client,
		analyzer.New(store, cfg.Monitor.DealThreshold),
		notify.NewDispatcher(store, channels...),
		monitor.Options{
			CredentialsPath: cfg.Scraper.CredentialsPath,
			Interval:        time.Duration(cfg.Monitor.ScanIntervalSeconds) * time.Second,
			Regions:         cfg.Monitor.Regions,
		},
	)

	progress := logger.WithComponent("progress")
	go func() {
		for e := range m.Events() {
			f := logger.Fields{"stage": e.Stage}
			if e.Region != "" {
				f["region"] = e.Region
			}
			if e.Page > 0 {
				f["page"] = e.Page
			}
			if e.Count > 0 {
				f["count"] = e.Count
			}
			if e.Message != "" {
				f["item"] = e.Message
			}
			progress.WithFields(f).Debug("scan progress")
		}
	}()

	if once {
		result, err := m.RunCycle(ctx)
		if err != nil {
			log.WithError(err).Fatal("scan cycle failed")
		}
		log.WithFields(logger.Fields{
			"listings": result.Listings,
			"deals":    result.Deals,
			"notified": result.Notified,
		}).Info("scan cycle finished")
		return
	}

	if err := m.Start(ctx); err != nil {
		log.WithError(err).Fatal("starting monitor failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	// A running cycle finishes before the process exits; the store is
	// closed by the deferred Close afterwards.
	log.Info("shutting down")
	m.Stop()
}

func openStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return database.NewPostgres(ctx, cfg.Database.URL)
	default:
		return database.NewSQLite(cfg.Database.Path)
	}
}

// seedDefaults maps the bootstrap config onto preference keys. Seeding
// never overwrites keys that already exist in the store.
func seedDefaults(cfg *config.Config) map[string]string {
	return map[string]string{
		database.PrefScanInterval:    strconv.Itoa(cfg.Monitor.ScanIntervalSeconds),
		database.PrefRegions:         cfg.Monitor.Regions,
		database.PrefThreshold:       strconv.FormatFloat(cfg.Monitor.DealThreshold, 'f', -1, 64),
		database.PrefFrequency:       notify.FrequencyImmediate,
		database.PrefQuietStart:      "22:00",
		database.PrefQuietEnd:        "08:00",
		database.PrefTelegramEnabled: strconv.FormatBool(cfg.Telegram.BotToken != ""),
		database.PrefEmailEnabled:    strconv.FormatBool(cfg.Email.Enabled),
		database.PrefEmailFrom:       cfg.Email.From,
		database.PrefEmailTo:         cfg.Email.To,
		database.PrefSMTPHost:        cfg.Email.SMTPHost,
		database.PrefSMTPPort:        strconv.Itoa(cfg.Email.SMTPPort),
		database.PrefSMTPUsername:    cfg.Email.Username,
		database.PrefSMTPPassword:    cfg.Email.Password,
	}
}

func runSearch(ctx context.Context, client *scraper.Client, cfg *config.Config, query string) error {
	creds, err := secrets.Load(cfg.Scraper.CredentialsPath)
	if err != nil {
		return err
	}
	if err := client.Authenticate(ctx, creds.Username, creds.Password); err != nil {
		return err
	}
	results, err := client.SearchModules(ctx, query)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no modules matched")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%-8s %s %s\n", r.ExternalID, r.Manufacturer, r.Name)
	}
	return nil
}

func runWatch(ctx context.Context, store database.Store, externalID string, threshold, maxPrice float64) error {
	var moduleID int64
	m, err := store.GetModule(ctx, externalID)
	switch {
	case err == nil:
		moduleID = m.ID
	case errors.Is(err, database.ErrNotFound):
		// Not seen by a scan yet. A bare row is enough, the next scan
		// fills in the catalog details.
		moduleID, err = store.UpsertModule(ctx, models.Module{ExternalID: externalID})
		if err != nil {
			return err
		}
	default:
		return err
	}
	if err := store.UpsertWatch(ctx, moduleID, threshold, maxPrice, "EUR"); err != nil {
		return err
	}
	fmt.Printf("watching module %s (threshold %.1f%%, max price %.2f)\n", externalID, threshold, maxPrice)
	return nil
}

func runUnwatch(ctx context.Context, store database.Store, externalID string) error {
	m, err := store.GetModule(ctx, externalID)
	if err != nil {
		return err
	}
	if err := store.RemoveWatch(ctx, m.ID); err != nil {
		return err
	}
	fmt.Printf("stopped watching module %s\n", externalID)
	return nil
}

func promptCredentials(path string) error {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("marketplace username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	fmt.Print("marketplace password: ")
	password, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	creds := secrets.Credentials{
		Username: strings.TrimSpace(username),
		Password: strings.TrimSpace(password),
	}
	if creds.Username == "" || creds.Password == "" {
		return fmt.Errorf("username and password must not be empty")
	}
	if err := secrets.Save(path, creds); err != nil {
		return err
	}
	fmt.Printf("credentials stored in %s\n", path)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
