// Command diligence-wizard fills in and submits a due diligence form from
// the terminal, then waits for the generated report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"diligencego/internal/logger"
	"diligencego/internal/wizard"
)

func main() {
	defaultServer := os.Getenv("DILIGENCE_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8090"
	}
	server := flag.String("server", defaultServer, "base URL of the diligence API")
	email := flag.String("email", "", "account email")
	register := flag.Bool("register", false, "create the account before logging in")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Parse()

	l := logger.New(*logLevel, "console")
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, l, *server, *email, *register); err != nil {
		if errors.Is(err, wizard.ErrAborted) {
			fmt.Fprintln(os.Stderr, "aborted")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, l *zap.Logger, server, email string, register bool) error {
	driver := wizard.NewSurveyDriver()
	client := wizard.NewClient(server, nil)

	var err error
	if strings.TrimSpace(email) == "" {
		email, err = driver.Input(ctx, wizard.InputConfig{
			Message: "Account email",
			Validator: func(s string) error {
				if !strings.Contains(s, "@") {
					return errors.New("enter an email address")
				}
				return nil
			},
		})
		if err != nil {
			return err
		}
	}
	password, err := driver.Password(ctx, wizard.InputConfig{Message: "Password"})
	if err != nil {
		return err
	}
	if register {
		if err := client.Register(ctx, email, password); err != nil {
			return err
		}
	}
	if err := client.Login(ctx, email, password); err != nil {
		return err
	}
	l.Info("logged in", zap.String("email", email), zap.String("server", server))

	sub, err := wizard.NewRunner(driver, client, l).Run(ctx)
	if err != nil {
		return err
	}
	if sub.Error != "" {
		return fmt.Errorf("submission %s failed: %s", sub.ID, sub.Error)
	}
	return nil
}
