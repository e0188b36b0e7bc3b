package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smaug-iot/marketplace/internal/accesstoken"
	"github.com/smaug-iot/marketplace/internal/escrow"
	"github.com/smaug-iot/marketplace/internal/marketplace"
	"github.com/smaug-iot/marketplace/internal/notifier"
	"github.com/smaug-iot/marketplace/internal/store"
)

var (
	commit    string
	buildDate string
)

func main() {
	configPath := flag.String("config", "", "location of config file. If non is specified config will be loaded from the environment")
	flag.Parse()

	log.Printf("build info: commit: %v date: %v\n", commit, buildDate)

	var (
		cfg Config
		err error
	)
	if *configPath != "" {
		log.Printf("loading config from file %q\n", *configPath)
		err = cfg.Load(*configPath)
	} else {
		log.Println("loading config from env")
		err = cfg.LoadFromEnv()
	}
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}

	if !common.IsHexAddress(cfg.Owner) {
		log.Printf("owner must be a hex address, got %q", cfg.Owner)
		os.Exit(1)
	}
	owner := common.HexToAddress(cfg.Owner)

	managers := []common.Address{owner}
	for _, m := range cfg.Managers {
		if !common.IsHexAddress(m) {
			log.Printf("manager must be a hex address, got %q", m)
			os.Exit(1)
		}
		managers = append(managers, common.HexToAddress(m))
	}

	// Persistence setup
	var db store.Store
	switch cfg.StoreBackend {
	case "sqlite":
		db, err = store.NewSQLite(cfg.StoreDSN)
		if err != nil {
			log.Printf("sqlite err: %v\n", err)
			os.Exit(1)
		}
	case "postgres":
		db, err = store.NewPostgres(cfg.StoreDSN)
		if err != nil {
			log.Printf("postgres err: %v\n", err)
			os.Exit(1)
		}
	default:
		log.Printf("unknown store_backend %q. must be 'sqlite' or 'postgres'", cfg.StoreBackend)
		os.Exit(1)
	}
	defer db.Close()

	// Escrow bank setup. The in-process bank is seeded from config;
	// swapping in a real ledger client is a deployment concern.
	balances := make(map[common.Address]uint64, len(cfg.InitialBalances))
	for _, b := range cfg.InitialBalances {
		if !common.IsHexAddress(b.Account) {
			log.Printf("balance account must be a hex address, got %q", b.Account)
			os.Exit(1)
		}
		balances[common.HexToAddress(b.Account)] = b.Amount
	}
	bank := escrow.NewMemoryBank(balances)
	ledger := escrow.New(bank, common.HexToAddress(cfg.VaultAccount))

	// Events fan out to the durable journal and, when configured, to the
	// nostr announcer.
	sinks := []marketplace.EventSink{store.NewJournal(db)}
	if cfg.NotifierNsec != "" {
		sinks = append(sinks, notifier.New(cfg.NotifierNsec, cfg.NotifierRelays))
	}

	auth := accesstoken.New(owner, managers, store.Nonces(db))
	svc := marketplace.New(marketplace.Config{Owner: owner}, auth, ledger, marketplace.MultiSink(sinks))

	h := handlers{
		config: cfg,
		svc:    svc,
	}

	r := newRouter(h)

	port := fmt.Sprintf(":%d", cfg.Port)

	log.Printf("api listening on %v\n", port)

	http.ListenAndServe(port, r)
}

func newRouter(h handlers) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Account"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(metricsMiddleware)

	r.Post("/requests", h.handleCreateRequest)
	r.Get("/requests/open", h.handleOpenRequests)
	r.Get("/requests/closed", h.handleClosedRequests)
	r.Get("/requests/{id}", h.handleGetRequest)
	r.Delete("/requests/{id}", h.handleDeleteRequest)
	r.Post("/requests/{id}/extra", h.handleSubmitRequestExtra)
	r.Get("/requests/{id}/extra", h.handleGetRequestExtra)
	r.Post("/requests/{id}/close", h.handleCloseRequest)
	r.Post("/requests/{id}/decision", h.handleDecideRequest)
	r.Get("/requests/{id}/decision", h.handleRequestDecision)
	r.Post("/requests/{id}/offers", h.handleSubmitOffer)
	r.Get("/requests/{id}/offers", h.handleRequestOffers)
	r.Get("/offers/{id}", h.handleGetOffer)
	r.Post("/offers/{id}/extra", h.handleSubmitOfferExtra)
	r.Get("/offers/{id}/extra", h.handleGetOfferExtra)
	r.Post("/offers/{id}/withdraw", h.handleWithdraw)
	r.Post("/trades/settle", h.handleSettleTrade)
	r.Post("/interledger/receive", h.handleInterledgerReceive)
	r.Post("/admin/reset-access-tokens", h.handleResetAccessTokens)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/info", h.handleInfo)

	return r
}
