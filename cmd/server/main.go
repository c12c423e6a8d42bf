package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"courier/internal/accounts"
	"courier/internal/blobstorage"
	"courier/internal/conf"
	"courier/internal/dao"
	"courier/internal/server"
)

const SERVER_ADDR = "0.0.0.0:4885"

func main() {
	// Command-line flags
	dataDir := flag.String("db", "/var/lib/courier", "Path to data directory")
	configPath := flag.String("config", "", "Path to configuration file (default: standard locations)")
	addr := flag.String("addr", "", "Listen address (overrides configuration)")
	flag.Parse()

	log.Println("Starting courier messaging server...")

	cfg := loadConfig(*configPath)

	if cfg.DataDir != "" && *dataDir == "/var/lib/courier" {
		*dataDir = cfg.DataDir
	}

	// Try to initialize S3 blob storage for oversized message bodies
	var blobs dao.BlobStorage
	if cfg.BlobStorage.Enabled {
		log.Println("Initializing S3 blob storage...")
		s3Storage, err := blobstorage.NewS3BlobStorage(cfg.BlobStorage)
		if err != nil {
			log.Printf("Warning: Failed to initialize S3 blob storage: %v", err)
			log.Println("Falling back to inline SQLite storage")
		} else {
			log.Printf("S3 blob storage initialized: %s (bucket: %s)", cfg.BlobStorage.Endpoint, cfg.BlobStorage.Bucket)
			blobs = s3Storage
		}
	} else {
		log.Println("S3 blob storage is disabled, message bodies stay inline")
	}

	accountDAO, err := dao.NewSQLiteDAOWithBlobStorage(*dataDir, blobs, cfg.BlobStorage.InlineLimit)
	if err != nil {
		log.Fatal("Failed to initialize account repository:", err)
	}
	defer func() {
		if err := accountDAO.Close(); err != nil {
			log.Printf("Error closing account repository: %v", err)
		}
	}()
	log.Printf("Account repository initialized: %s", *dataDir)

	ttl := time.Duration(cfg.TokenTTLSeconds) * time.Second
	manager, err := accounts.NewManagerWithSigningKey(accountDAO, []byte(cfg.TokenSecret), ttl)
	if err != nil {
		log.Fatal("Failed to initialize account manager:", err)
	}

	srv := server.NewServer(manager)

	listenAddr := SERVER_ADDR
	if cfg.ListenAddr != "" {
		listenAddr = cfg.ListenAddr
	}
	if *addr != "" {
		listenAddr = *addr
	}

	ln, err := net.Listen("tcp", listenAddr) // #nosec G102 -- Intentionally binding to all interfaces for the messaging server
	if err != nil {
		log.Fatal("Failed to start TCP listener:", err)
	}

	log.Printf("Courier messaging server listening at %s...", listenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				log.Println("Accept error:", err)
				continue
			}
			log.Printf("Connection accepted from %s", conn.RemoteAddr())
			go srv.HandleConnection(conn)
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Println("Server connection shutting down...")
		return ln.Close()
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server exited with error: %v", err)
	}
}

func loadConfig(path string) *conf.Config {
	var cfg *conf.Config
	var err error
	if path != "" {
		cfg, err = conf.LoadConfigFile(path)
	} else {
		cfg, err = conf.LoadConfig()
	}
	if err != nil {
		log.Printf("Warning: no configuration file loaded: %v", err)
		return &conf.Config{}
	}
	return cfg
}
