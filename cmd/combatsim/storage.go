package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/OCAP2/combatsim/internal/config"
	"github.com/OCAP2/combatsim/internal/database"
	"github.com/OCAP2/combatsim/internal/storage"
	gormstorage "github.com/OCAP2/combatsim/internal/storage/gorm"
	"github.com/OCAP2/combatsim/internal/storage/jsonl"
	"github.com/OCAP2/combatsim/internal/storage/memory"
	wsstorage "github.com/OCAP2/combatsim/internal/storage/websocket"
	"github.com/rs/zerolog"
)

// createBackends returns the durable jsonl log first, followed by every
// configured mirror that could be created. Mirror failures are logged and
// the mirror is skipped; the run never depends on a mirror.
func createBackends(
	logCfg config.CombatLogConfig,
	storageCfg config.StorageConfig,
	start time.Time,
	log *slog.Logger,
	dbLog zerolog.Logger,
) []storage.Backend {
	backends := []storage.Backend{
		jsonl.New(jsonl.Config{Dir: logCfg.Dir, Fsync: logCfg.Fsync}),
	}

	seen := map[string]bool{"jsonl": true}
	for _, name := range storageCfg.Mirrors {
		name = strings.ToLower(strings.TrimSpace(name))
		if seen[name] {
			continue
		}
		seen[name] = true

		backend, err := createMirror(name, storageCfg, start, log, dbLog)
		if err != nil {
			log.Error("Failed to create storage mirror", "mirror", name, "error", err)
			continue
		}
		log.Info("Storage mirror initialized", "mirror", backend.Name())
		backends = append(backends, backend)
	}
	return backends
}

func createMirror(
	name string,
	storageCfg config.StorageConfig,
	start time.Time,
	log *slog.Logger,
	dbLog zerolog.Logger,
) (storage.Backend, error) {
	memName := fmt.Sprintf("%s_%s", AppName, start.Format("20060102_150405"))
	dumpPath := filepath.Join(storageCfg.SQLite.OutputDir, memName+".db")

	switch name {
	case "memory":
		return memory.New(storageCfg.Memory), nil

	case "sqlite":
		mgr := database.NewManager(dbLog)
		if err := mgr.ConnectSqlite(storageCfg.SQLite.Path, memName); err != nil {
			return nil, err
		}
		cfg := gormstorage.Config{}
		if storageCfg.SQLite.Path == "" {
			cfg.DumpInterval = storageCfg.SQLite.DumpInterval
			cfg.DumpPath = dumpPath
		}
		return gormstorage.New(mgr, cfg, log), nil

	case "postgres":
		mgr := database.NewManager(dbLog)
		if err := mgr.Connect(storageCfg.Postgres, memName); err != nil {
			return nil, err
		}
		cfg := gormstorage.Config{}
		if mgr.ShouldSaveLocal {
			cfg.DumpInterval = storageCfg.SQLite.DumpInterval
			cfg.DumpPath = dumpPath
		}
		return gormstorage.New(mgr, cfg, log), nil

	case "websocket":
		if storageCfg.WebSocket.URL == "" {
			return nil, fmt.Errorf("storage.websocket.url is not set")
		}
		return wsstorage.New(wsstorage.Config{
			URL:          httpToWS(storageCfg.WebSocket.URL),
			Secret:       storageCfg.WebSocket.Secret,
			WriteTimeout: storageCfg.WebSocket.WriteTimeout,
		}, log), nil
	}
	return nil, fmt.Errorf("unknown storage mirror %q", name)
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
