package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"chaincore/core"
)

// newInspectionRouter builds the read-only HTTP surface over chain, mirroring
// the inspect subcommands one route apiece, plus a /contracts route that has
// no inspect counterpart. There is no write route: a chain
// is only ever mutated by add-block and rollback, run as one-shot commands
// against storage the server does not hold open concurrently with them.
func newInspectionRouter(chain *core.Chain) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/chain", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]interface{}{
			"name":    chain.Name,
			"address": chain.Address.Hex(),
			"height":  chain.Height(),
			"tip":     chain.Tip().Hex(),
		})
	})

	r.Get("/blocks/{height}", func(w http.ResponseWriter, req *http.Request) {
		var height uint64
		if _, err := fmt.Sscanf(chi.URLParam(req, "height"), "%d", &height); err != nil {
			http.Error(w, fmt.Sprintf("invalid height: %v", err), http.StatusBadRequest)
			return
		}
		block, ok, err := chain.GetBlock(height)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "no block at that height", http.StatusNotFound)
			return
		}
		writeJSON(w, block)
	})

	r.Get("/balances/{symbol}/{address}", func(w http.ResponseWriter, req *http.Request) {
		raw, err := hex.DecodeString(chi.URLParam(req, "address"))
		if err != nil || len(raw) != 32 {
			http.Error(w, "invalid address", http.StatusBadRequest)
			return
		}
		var addr core.Address
		copy(addr[:], raw)
		bal, err := chain.BalanceOf(chi.URLParam(req, "symbol"), addr)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"symbol": chi.URLParam(req, "symbol"), "balance": bal})
	})

	r.Get("/contracts/{name}", func(w http.ResponseWriter, req *http.Request) {
		contract, ok := chain.GetContract(chi.URLParam(req, "name"))
		if !ok {
			http.Error(w, "no such contract", http.StatusNotFound)
			return
		}
		writeJSON(w, contract)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Info("inspection request")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve a read-only HTTP inspection API over the chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			chain, err := openChain(cmd, cfg)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"addr": addr, "chain": chain.Name}).Info("inspection API listening")
			return http.ListenAndServe(addr, newInspectionRouter(chain))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8090", "address to listen on")
	return cmd
}
