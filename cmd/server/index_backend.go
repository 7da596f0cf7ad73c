package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"shipscore.ai/internal/config"
	"shipscore.ai/internal/persistence/indexdb"
	"shipscore.ai/internal/persistence/objstore"
)

func openIndex(cfg config.Config, logger *log.Logger) (*indexdb.SQLiteIndex, error) {
	if cfg.DisableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SHIPSCORE_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		logger.Printf("analysis index disabled by SHIPSCORE_INDEX_BACKEND=%s", backend)
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(cfg.IndexDB)
	default:
		return nil, fmt.Errorf("unknown SHIPSCORE_INDEX_BACKEND=%q", backend)
	}
}

func openMirror(cfg config.Config, logger *log.Logger) (*objstore.Mirror, error) {
	mc := cfg.JournalMirror
	if !mc.Enabled() {
		return nil, nil
	}
	client, err := objstore.NewS3Client(objstore.S3Config{
		Endpoint:        mc.Endpoint,
		Bucket:          mc.Bucket,
		Region:          mc.Region,
		AccessKeyID:     os.Getenv("SHIPSCORE_MIRROR_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("SHIPSCORE_MIRROR_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, err
	}
	logger.Printf("mirroring %s to %s/%s", cfg.JournalDir, mc.Endpoint, mc.Bucket)
	return objstore.NewMirror(client, objstore.MirrorOptions{
		BaseDir: filepath.Dir(cfg.JournalDir),
		Prefix:  mc.Prefix,
		Workers: mc.Workers,
		Logger:  logger,
	}), nil
}
