// Command zar-numberpoold is a thin reference HTTP binary wiring C1-C10
// behind the route table of spec.md §6. It is not a certified
// implementation of request validation (spec.md §1 treats the HTTP
// surface as an external collaborator) — it exists so every core
// operation can be exercised end to end through a real listener.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/totalhack/zar-numberpool/areacode"
	"github.com/totalhack/zar-numberpool/attribution"
	"github.com/totalhack/zar-numberpool/catalog"
	"github.com/totalhack/zar-numberpool/config"
	"github.com/totalhack/zar-numberpool/filer"
	"github.com/totalhack/zar-numberpool/geo"
	"github.com/totalhack/zar-numberpool/identity"
	"github.com/totalhack/zar-numberpool/kvstore"
	"github.com/totalhack/zar-numberpool/numberpool"
	"github.com/totalhack/zar-numberpool/routecache"
	"github.com/totalhack/zar-numberpool/staticnumber"
	"github.com/totalhack/zar-numberpool/userprofile"
)

var log = logrus.WithField("component", "zar-numberpoold")

type server struct {
	cfg       *config.Settings
	engine    *numberpool.Engine
	attr      *attribution.Resolver
	users     *userprofile.Store
	statics   *staticnumber.Store
	areaCodes areacode.Table
	cidCodec  *identity.CIDCodec
}

func main() {
	cfg := config.Defaults()
	config.Read(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := kvstore.Connect(ctx, kvstore.Options{
		Addr:     cfg.KVAddr,
		Password: cfg.KVPassword,
		DB:       cfg.KVDB,
	}, uint(cfg.ConnectTries), cfg.ConnectRetryPause)
	if err != nil {
		log.WithError(err).Fatal("connect to kv store failed")
	}

	reader, err := catalog.NewClient(cfg)
	if err != nil {
		log.WithError(err).Fatal("connect to catalog failed")
	}

	engine := numberpool.NewEngine(store, reader, cfg)

	ready := make(chan struct{}, 1)
	go func() {
		if err := engine.SubscribePoolProperties(ctx, ready); err != nil {
			log.WithError(err).Error("pool properties subscription ended")
		}
	}()
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		log.Warn("pool properties subscription did not confirm in time")
	}

	routes := routecache.NewCache(store, cfg.RouteCacheExpiration)
	users := userprofile.NewStore(store, cfg.UserContextExpiration, cfg.IgnoredCallerIDs)
	statics := staticnumber.NewStore(store)

	var geoTable *geo.Table
	if cfg.GeoTablePath != "" {
		geoTable, err = geo.LoadTable(filer.NewJsonLoader(), cfg.GeoTablePath)
		if err != nil {
			log.WithError(err).Warn("geo table load failed, zip-distance enrichment disabled")
			geoTable = nil
		}
	}

	var areaCodes areacode.Table
	if cfg.CriteriaAreaCodesPath != "" {
		areaCodes, err = areacode.LoadTable(filer.NewJsonLoader(), cfg.CriteriaAreaCodesPath)
		if err != nil {
			log.WithError(err).Warn("area code criteria table load failed, area-code targeting disabled")
			areaCodes = nil
		}
	}

	cidCodec, err := identity.NewCIDCodec(cfg)
	if err != nil {
		log.WithError(err).Fatal("cid cookie codec setup failed")
	}

	resolver := attribution.NewResolver(cfg, engine, routes, users, statics, geoTable)

	srv := &server{
		cfg:       cfg,
		engine:    engine,
		attr:      resolver,
		users:     users,
		statics:   statics,
		areaCodes: areaCodes,
		cidCodec:  cidCodec,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/page", srv.handlePage)
	mux.HandleFunc("/track", srv.handleTrack)
	mux.HandleFunc("/noscript", srv.handleNoscript)
	mux.HandleFunc("/number_pool", srv.handleNumberPool)
	mux.HandleFunc("/update_number", srv.handleUpdateNumber)
	mux.HandleFunc("/track_call", srv.handleTrackCall)
	mux.HandleFunc("/get_user_context", srv.handleGetUserContext)
	mux.HandleFunc("/update_user_context", srv.handleUpdateUserContext)
	mux.HandleFunc("/remove_user_context", srv.handleRemoveUserContext)
	mux.HandleFunc("/get_static_number_context", srv.handleGetStaticNumberContext)
	mux.HandleFunc("/set_static_number_contexts", srv.handleSetStaticNumberContexts)
	mux.HandleFunc("/ok", srv.handleOK)
	mux.HandleFunc("/refresh_number_pool_conn", srv.requireAdminKey(srv.handleRefreshConn))
	mux.HandleFunc("/init_number_pools", srv.requireAdminKey(srv.handleInitPools))
	mux.HandleFunc("/reset_pool", srv.requireAdminKey(srv.handleResetPool))
	mux.HandleFunc("/number_pool_stats", srv.requireAdminKey(srv.handlePoolStats))

	httpSrv := &http.Server{
		Addr:    ":8080",
		Handler: mux,
	}

	go func() {
		log.WithField("addr", httpSrv.Addr).Info("listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
