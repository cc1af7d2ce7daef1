package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/virtpad/virtpad/bus"
	"github.com/virtpad/virtpad/internal/configpaths"
	"github.com/virtpad/virtpad/internal/log"
	"github.com/virtpad/virtpad/internal/server"
	"github.com/virtpad/virtpad/internal/server/auth"
	"github.com/virtpad/virtpad/internal/util"
)

const keyFileName = "virtpad.key.txt"

type Server struct {
	ServerConfig      server.Config `embed:"" prefix:"server."`
	ConnectionTimeout time.Duration `help:"Connection setup timeout" default:"30s" env:"VIRTPAD_CONNECTION_TIMEOUT"`
	NoAuth            bool          `help:"Disable client authentication" env:"VIRTPAD_NO_AUTH"`
}

// Run is called by Kong when the server command is executed.
func (s *Server) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.StartServer(ctx, logger, rawLogger)
}

func (s *Server) StartServer(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	s.ServerConfig.ConnectionTimeout = s.ConnectionTimeout

	logger.Info("Starting virtpad bus server", "addr", s.ServerConfig.Addr)

	if s.NoAuth {
		s.ServerConfig.Password = ""
	} else if s.ServerConfig.Password == "" {
		if err := s.loadOrGenerateKey(logger); err != nil {
			return err
		}
	}

	registry := bus.NewRegistry(logger)
	srv, err := server.New(s.ServerConfig, registry, logger, rawLogger)
	if err != nil {
		logger.Error("failed to create bus server", "error", err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Close()
	})

	select {
	case <-srv.Ready():
	case <-gctx.Done():
	}

	if util.IsRunFromGUI() {
		go (func() {
			time.Sleep(250 * time.Millisecond)
			util.HideConsoleWindow()
		})()
	}

	if err := g.Wait(); err != nil {
		logger.Error("bus server exited", "error", err)
		if util.IsRunFromGUI() {
			fmt.Println("Press any key to exit...")
			var b []byte = make([]byte, 1)
			_, _ = os.Stdin.Read(b)
		}
		return err
	}
	return nil
}

// loadOrGenerateKey fills the server password from the key file,
// creating it with a fresh key on first run.
func (s *Server) loadOrGenerateKey(logger *slog.Logger) error {
	keyFileDir, err := configpaths.DefaultConfigDir()
	if err != nil {
		return fmt.Errorf("failed to resolve key file path: %w", err)
	}
	keyFilePath := path.Join(keyFileDir, keyFileName)
	if pwd, err := os.ReadFile(keyFilePath); err == nil {
		s.ServerConfig.Password = strings.TrimSpace(string(pwd))
		return nil
	}
	newPwd, err := auth.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate new server password: %w", err)
	}
	if err := os.MkdirAll(keyFileDir, 0o700); err != nil {
		return fmt.Errorf("failed to create config dir for key file: %w", err)
	}
	if err := os.WriteFile(keyFilePath, []byte(newPwd), 0o600); err != nil {
		return fmt.Errorf("failed to write new server password to file: %w", err)
	}
	s.ServerConfig.Password = newPwd
	logger.Info("Generated bus server password", "path", keyFilePath)
	logger.Info("-------------------------------------")
	logger.Info("Your virtpad server password is:")
	logger.Info("-------------------------------------")
	logger.Info(newPwd)
	logger.Info("-------------------------------------")
	logger.Info("You can change this password at any time by editing the file")
	return nil
}
