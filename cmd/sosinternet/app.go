package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sosinternet/internal/actuator"
	"sosinternet/internal/config"
	"sosinternet/internal/probe"
	"sosinternet/internal/secret"
)

func buildProbe(cfg config.ConnectionSettings, logger *zap.Logger) (*probe.Probe, error) {
	pinger, err := probe.NewPinger(cfg.ProbeMethod)
	if err != nil {
		return nil, err
	}
	return probe.New(cfg.ProbeTargets, pinger,
		probe.WithTimeout(cfg.ProbeTimeout()),
		probe.WithLogger(logger.Named("probe")),
	)
}

func buildActuator(cfg config.RouterSettings, logger *zap.Logger) (actuator.Actuator, error) {
	logger = logger.Named("actuator")
	creds := credentials(cfg, logger)
	switch cfg.Driver {
	case "tplink":
		return actuator.NewTPLink(creds, cfg.Timeout(), actuator.ChromeSessions(cfg.Headless, cfg.Timeout()), logger), nil
	case "ssh":
		return actuator.NewSSH(creds, cfg.SSHAddress, cfg.SSHCommand, cfg.SSHHostKey, cfg.Timeout(), logger)
	default:
		return nil, fmt.Errorf("unknown router driver %q", cfg.Driver)
	}
}

// preflight verifies the actuator's local dependencies, such as the browser
// used by the tplink driver, so a broken install fails at startup instead of
// during the first escalation.
func preflight(ctx context.Context, act actuator.Actuator, logger *zap.Logger) error {
	pf, ok := act.(actuator.Preflighter)
	if !ok {
		return nil
	}
	if err := pf.Preflight(ctx); err != nil {
		logger.Error("router driver is not usable", zap.String("kind", actuator.Kind(err)), zap.Error(err))
		return fmt.Errorf("router driver preflight: %w", err)
	}
	return nil
}

func credentials(cfg config.RouterSettings, logger *zap.Logger) actuator.Credentials {
	creds := actuator.Credentials{
		URL:       cfg.URL,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Encrypted: cfg.UseEncryption,
	}
	if !cfg.UseEncryption {
		return creds
	}
	key, isDefault := secret.KeyFromEnv(config.EnvEncryptionKey)
	if isDefault {
		logger.Warn("using the built-in encryption key, set " + config.EnvEncryptionKey + " to protect the router password")
	}
	if secret.IsLegacy(cfg.Password) {
		logger.Warn("router password uses the legacy encryption format, re-encrypt it with the encrypt command")
	}
	creds.Key = key
	return creds
}
