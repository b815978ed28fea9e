// Command server wires every component into one HTTP process: the
// call-control document builder, control webhook, outbound dispatcher,
// carrier WebSocket bridge, and live-transcript streamer (spec.md §6).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/birddigital/voicebridge/internal/bridgeerr"
	"github.com/birddigital/voicebridge/internal/config"
	"github.com/birddigital/voicebridge/internal/logging"
	"github.com/birddigital/voicebridge/internal/metrics"
	"github.com/birddigital/voicebridge/pkg/bridge"
	"github.com/birddigital/voicebridge/pkg/controlplane"
	"github.com/birddigital/voicebridge/pkg/credential"
	"github.com/birddigital/voicebridge/pkg/dispatcher"
	"github.com/birddigital/voicebridge/pkg/livestream"
	"github.com/birddigital/voicebridge/pkg/transcript"
	"github.com/birddigital/voicebridge/pkg/twiml"
	"github.com/birddigital/voicebridge/pkg/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogPretty, cfg.LogLevel)

	cp, err := controlplane.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid session defaults")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
	}
	transcripts := transcript.New(log, rdb, func() { metrics.TranscriptStoreFallbacks.Inc() })

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err = pgxpool.New(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("connect database")
		}
		defer db.Close()
	}

	minter := credential.New(cfg.ModelCredentialURL, cfg.OpenAIAPIKey, cfg.OpenAIOrgID, cfg.OpenAIProjectID)

	twimlHandler := twiml.NewHandler(twiml.Config{
		Log:           log,
		Minter:        minter,
		ControlPlane:  cp,
		StreamBaseURL: strings.TrimSuffix(cfg.ExternalBridgeURL, "/") + "/stream/twilio",
		SIPGateway:    cfg.SIPGateway,
		DefaultMode:   twiml.Mode(cfg.DefaultTwiMLMode),
		SigningSecret: cfg.CarrierAuthToken,
	})

	webhookHandler := webhook.NewHandler(webhook.Config{
		Log:          log,
		ControlPlane: cp,
		HMACSecret:   cfg.ControlSecret,
		AdminSecret:  cfg.ControlAdminSecret,
	})

	callDispatcher := dispatcher.New(cfg.CarrierAccountSID, cfg.CarrierAuthToken, db)
	callHandler := dispatcher.NewHandler(callDispatcher)

	liveStreamer := livestream.New(log, transcripts)

	bridgeCfg := bridge.Config{
		Log:          log,
		ControlPlane: cp,
		Transcripts:  transcripts,
		ModelWSHost:  cfg.ModelWebSocketHost,
		ModelAPIKey:  cfg.OpenAIAPIKey,
		Model:        cfg.DefaultModel,
	}
	// Each carrier connection gets its own Bridge. Stripping "/stream" leaves
	// the Bridge a "/twilio" route segment, followed by the credential
	// segment when the call-control document embeds it in the path.
	bridgeHandler := http.StripPrefix("/stream", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bridge.New(bridgeCfg).ServeHTTP(w, r)
	}))

	mux := http.NewServeMux()
	mux.HandleFunc("/twiml", twimlHandler.ServeTwiML)
	mux.HandleFunc("/twiml/action", twimlHandler.ServeAction)
	mux.Handle("/stream/twilio", bridgeHandler)
	mux.Handle("/stream/twilio/", bridgeHandler)
	mux.HandleFunc("/realtime-token", serveRealtimeToken(log, minter, cp, cfg.CredentialExpirySeconds))
	mux.Handle("/calls", callHandler)
	mux.HandleFunc("/control", webhookHandler.ServeControl)
	mux.HandleFunc("/control/settings", webhookHandler.ServeSettings)
	mux.HandleFunc("/live/", serveLiveTranscript(liveStreamer))
	mux.HandleFunc("/health", serveHealth)
	mux.HandleFunc("/env-check", serveEnvCheck)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// serveRealtimeToken handles POST /realtime-token: mints a short-lived
// credential for a caller-supplied (or control-plane default) session so
// a client never sees the long-lived API key.
func serveRealtimeToken(log zerolog.Logger, minter *credential.Minter, cp *controlplane.State, expiresAfterSeconds int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		session := cp.Get()
		sessionMap, err := json.Marshal(session)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		var m map[string]any
		if err := json.Unmarshal(sessionMap, &m); err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		result, err := minter.Mint(r.Context(), credential.Request{Session: m, ExpiresAfterSeconds: expiresAfterSeconds})
		if err != nil {
			log.Error().Err(err).Msg("realtime-token mint failed")
			writeMintError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}
}

// writeMintError forwards a credential-mint failure's upstream status and
// body when the error carries one, the same pattern pkg/dispatcher's
// writeDispatchError uses for outbound-call placement failures.
func writeMintError(w http.ResponseWriter, err error) {
	be, ok := bridgeerr.As(err)
	if !ok {
		http.Error(w, "mint failed", http.StatusBadGateway)
		return
	}
	if be.Kind == bridgeerr.KindInputInvalid {
		http.Error(w, be.Error(), http.StatusBadRequest)
		return
	}
	if be.Upstream != nil {
		status := be.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(be.Upstream)
		return
	}
	http.Error(w, be.Error(), http.StatusBadGateway)
}

// serveLiveTranscript routes both /live/{key} (SSE) and /live/{key}/push
// (entry injection) through one prefix handler, since net/http's
// ServeMux in this Go version has no built-in path-parameter support.
func serveLiveTranscript(s *livestream.Streamer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/live/")
		if strings.HasSuffix(path, "/push") {
			key := strings.TrimSuffix(path, "/push")
			s.ServePush(w, r, key)
			return
		}
		s.ServeSSE(w, r, path)
	}
}

func serveHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func serveEnvCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(config.EnvCheck())
}
