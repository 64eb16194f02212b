package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultTokenSweep      = 7 * 24 * time.Hour
)

type Config struct {
	ServerAddr      string
	DatabaseDSN     string
	AccessSecret    []byte
	RefreshSecret   []byte
	AllowedOrigins  []string
	FileDir         string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	TokenSweep      time.Duration
}

func decodeSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, accessSecret, refreshSecret, fileDir string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if accessSecret == "" {
		return nil, fmt.Errorf("access token secret cannot be empty")
	}
	if refreshSecret == "" {
		return nil, fmt.Errorf("refresh token secret cannot be empty")
	}
	if fileDir == "" {
		return nil, fmt.Errorf("file directory cannot be empty")
	}

	accessKey, err := decodeSecret(accessSecret)
	if err != nil {
		return nil, fmt.Errorf("decode access token secret: %w", err)
	}

	refreshKey, err := decodeSecret(refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("decode refresh token secret: %w", err)
	}

	return &Config{
		ServerAddr:      serverAddr,
		DatabaseDSN:     databaseDSN,
		AccessSecret:    accessKey,
		RefreshSecret:   refreshKey,
		AllowedOrigins:  allowedOrigins,
		FileDir:         fileDir,
		AccessTokenTTL:  DefaultAccessTokenTTL,
		RefreshTokenTTL: DefaultRefreshTokenTTL,
		TokenSweep:      DefaultTokenSweep,
	}, nil
}
