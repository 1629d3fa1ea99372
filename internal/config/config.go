package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	DBSource   string
	ApproverID int64
	BridgeURL  string
	Port       string
	Env        string
	LogLevel   string
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	approverRaw := os.Getenv("APPROVER_ID")
	if approverRaw == "" {
		return nil, fmt.Errorf("APPROVER_ID environment variable is required")
	}
	approverID, err := strconv.ParseInt(approverRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("APPROVER_ID must be a numeric transport identity: %w", err)
	}

	bridgeURL := os.Getenv("BRIDGE_URL")
	if bridgeURL == "" {
		return nil, fmt.Errorf("BRIDGE_URL environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		DBSource:   dbSource,
		ApproverID: approverID,
		BridgeURL:  bridgeURL,
		Port:       port,
		Env:        env,
		LogLevel:   logLevel,
	}, nil
}
