package commands

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/slitherpit/engine/account"
	"github.com/slitherpit/engine/account/redisstore"
	"github.com/slitherpit/engine/account/sqlstore"
	"github.com/slitherpit/engine/api"
	"github.com/slitherpit/engine/arena"
	"github.com/slitherpit/engine/config"
	"github.com/slitherpit/engine/ledger"
)

var (
	serverListen     = ":3005"
	storeBackend     = "inmem"
	storeBackendArgs = ""
	insecureIdentity = false
	promEnable       = true
	promListen       = ":9000"
)

func init() {
	serverCmd.Flags().StringVarP(&serverListen, "listen", "l", serverListen, "gateway address to listen on")
	serverCmd.Flags().StringVarP(&storeBackend, "backend", "b", storeBackend, "account store backend, as one of: [inmem, redis, sql]")
	serverCmd.Flags().StringVarP(&storeBackendArgs, "backend-args", "a", storeBackendArgs, "options to pass to the backend being used")
	serverCmd.Flags().BoolVar(&insecureIdentity, "insecure-identity", insecureIdentity, "treat bearer tokens as user ids, for development only")
	serverCmd.Flags().BoolVar(&promEnable, "prometheus", promEnable, "enable prometheus metrics")
	serverCmd.Flags().StringVar(&promListen, "prometheus-listen", promListen, "prometheus http endpoint")
}

var serverCmd = &cobra.Command{
	Use:    "server",
	Short:  "serve the arena gateway and simulation",
	PreRun: func(c *cobra.Command, args []string) { prometheus() },
	Run: func(c *cobra.Command, args []string) {
		var store account.Store
		var err error
		switch storeBackend {
		case "inmem":
			store = account.InMemStore()
		case "redis":
			store, err = redisstore.NewStore(storeBackendArgs)
		case "sql":
			store, err = sqlstore.NewSQLStore(storeBackendArgs)
		default:
			log.WithField("backend", storeBackend).Fatal("invalid backend")
		}
		if err != nil {
			log.WithError(err).Fatal("unable to start up backend store")
		}
		if c, ok := store.(io.Closer); ok {
			defer func() {
				if err := c.Close(); err != nil {
					log.WithError(err).Error("unable to close store")
				}
			}()
		}
		store = account.InstrumentStore(store)

		signer := ledger.NewTokenSigner(secret("MATCH_TOKEN_SECRET"), config.MatchTokenTTL)
		opts := []ledger.Option{ledger.WithStoreTimeout(config.CashoutTimeout)}
		if config.PayoutPolicy == "scaled" {
			opts = append(opts, ledger.WithPayoutPolicy(ledger.LengthScaledPayout(config.SpawnLength)))
		}
		l := ledger.New(store, signer, config.StakeTiers, opts...)

		world := arena.New(arena.DefaultConfig())
		go world.Run(context.Background())

		identity := identityVerifier()
		srv := api.New(serverListen, world, l, store, identity)
		srv.WaitForExit()
	},
}

func identityVerifier() api.IdentityVerifier {
	if insecureIdentity {
		log.Warn("identity verification disabled, bearer tokens are user ids")
		return api.InsecureIdentity{}
	}
	return api.HMACIdentity{Secret: secret("IDENTITY_SECRET")}
}

func secret(name string) []byte {
	val := os.Getenv(name)
	if val == "" {
		log.WithField("var", name).Fatal("secret not set")
	}
	return []byte(val)
}

func prometheus() {
	if !promEnable {
		log.Info("prometheus exporter not enabled")
		return
	}

	log.WithField("addr", promListen).Info("starting prometheus exporter")
	go func() {
		r := http.NewServeMux()
		r.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(promListen, r); err != nil {
			log.WithError(err).Warn("prometheus failed to listen")
		}
	}()
}
