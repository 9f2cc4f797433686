package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/formflow/form-app/internal/config"
	"github.com/formflow/form-app/internal/flow"
	"github.com/formflow/form-app/internal/logging"
	"github.com/formflow/form-app/internal/messaging"
)

// formwatcher subscribes to form flow events and logs each one.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.WithError(err).Fatal("invalid logging configuration")
	}

	natsConfig := messaging.DefaultNATSConfig()
	if cfg.NATSURL != "" {
		natsConfig.URL = cfg.NATSURL
	}
	natsConfig.Name = "form-watcher"

	natsClient, err := messaging.NewNATSClient(natsConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to NATS")
	}

	log := logger.WithField("component", "watcher")
	err = natsClient.SubscribeFormEvents(func(subject string, data []byte) {
		var ev flow.FormEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.WithError(err).WithField("subject", subject).Warn("invalid form event")
			return
		}
		log.WithFields(logrus.Fields{
			"subject": subject,
			"type":    ev.Type,
			"session": ev.SessionID,
			"age":     ev.Age,
			"ts":      ev.Ts,
		}).Info("form event")
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to subscribe to form events")
	}

	logger.WithField("nats_url", natsConfig.URL).Info("form watcher running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("shutting down")

	natsClient.Close()
}
