// Package config loads liveview.yaml or liveview.json.
//
// JSON files may carry comments and trailing commas. Durations are strings
// in time.ParseDuration syntax. Every field has a default, so an empty
// file is a valid config.
//
// # File Structure
//
//	server:
//	  address: ":8080"
//	  maxSessions: 1000
//	  allowedOrigins: ["https://app.example.com"]
//	session:
//	  idleTimeout: 5m
//	  stateTTL: 1h
//	  eventRate: 100
//	  eventBurst: 20
//	  codec: binary
//	store:
//	  driver: redis        # memory, redis, postgres, sqlite, s3
//	  redis:
//	    address: localhost:6379
//	log:
//	  format: json         # text or json
//	  level: info
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    errors.Fprint(os.Stderr, err)
//	    os.Exit(1)
//	}
//	sc, _ := cfg.ServerConfig()
//	store, err := cfg.Store.OpenStore(ctx, logger)
package config
