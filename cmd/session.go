package cmd

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/kamusis/kbmatch/internal/config"
	"github.com/kamusis/kbmatch/internal/kb"
	"github.com/kamusis/kbmatch/internal/logging"
)

// session is the state shared by the Hub-facing commands.
type session struct {
	cfg      *config.Config
	logger   *log.Logger
	client   kb.Client
	closeLog func() error
}

// newClient builds the Hub client. Tests replace it with an in-memory fake.
var newClient = func(cfg *config.Config, logger *log.Logger) (kb.Client, error) {
	hub, err := config.ResolveHub(cfg)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	return kb.NewHub(kb.HubConfig{
		BaseURL:     hub.ServerURL,
		APIToken:    hub.APIToken,
		InsecureTLS: cfg.InsecureTLS,
		Timeout:     timeout,
		UserAgent:   userAgent(),
	}, logger), nil
}

// openSession loads the config, opens the log file and builds the Hub client.
func openSession(command string) (*session, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return nil, err
	}
	if flagLogFile != "" {
		cfg.LogFile = flagLogFile
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	logger, closeLog, err := logging.Open(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger = logger.With("cmd", command)

	client, err := newClient(cfg, logger)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("cannot connect to Hub: %w", err)
	}
	return &session{cfg: cfg, logger: logger, client: client, closeLog: closeLog}, nil
}

func (s *session) Close() {
	if err := s.closeLog(); err != nil {
		printWarn("", fmt.Sprintf("cannot close log file: %v", err))
	}
}
