package config

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// NewSheetsService builds a read-only Sheets client. Explicit JSON wins over a
// credentials file; with neither, Application Default Credentials are used.
func NewSheetsService(ctx context.Context, cfg SheetsConfig) (*sheets.Service, error) {
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsReadonlyScope)}
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init sheets service: %w", err)
	}
	return srv, nil
}

// NewStorageClient prefers ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
func NewStorageClient(ctx context.Context, credentialsJSON string) (*storage.Client, error) {
	if strings.TrimSpace(credentialsJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	return storage.NewClient(ctx)
}
