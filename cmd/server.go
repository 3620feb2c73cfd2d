package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pledge/core"
	"pledge/handler"
	"pledge/handler/hc"
	"pledge/handler/render"
	"pledge/service/ledger"
	"pledge/worker"
	"pledge/worker/archiver"
	"pledge/worker/keeper"

	"github.com/drone/signal"
	"github.com/fox-one/pkg/logger"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "run pledge api server and workers",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		database := provideDatabase()
		defer database.Close()

		sys, err := provideSystem(ctx, database, providePropertyStore(database))
		if err != nil {
			logrus.WithError(err).Fatal("init system failed")
		}

		loans := provideLoanStore(database)
		keep := keeper.New(sys.ledger, cfg.App.Location, cfg.Keeper.Every(), ledger.SystemClock)
		workers := []worker.Worker{
			archiver.New(sys.hub, sys.ledger, loans),
			keep,
		}

		mux := chi.NewMux()
		mux.Use(middleware.Recoverer)
		mux.Use(middleware.StripSlashes)
		mux.Use(cors.AllowAll().Handler)
		mux.Use(logger.WithRequestID)
		mux.Use(middleware.Logger)
		mux.Use(middleware.NewCompressor(5).Handler)

		{
			//hc
			mux.Mount("/hc", hc.Handle(rootCmd.Version, map[string]hc.Check{
				// the executor answers a read
				"ledger": func(ctx context.Context) error {
					_, err := sys.ledger.Loans(ctx, core.LoanFilter{Limit: 1})
					return err
				},
				"archive": func(ctx context.Context) error {
					_, err := loans.List(ctx, core.LoanFilter{Limit: 1})
					return err
				},
			}))
		}

		{
			//keeper report
			mux.Get("/keeper", func(w http.ResponseWriter, r *http.Request) {
				render.JSON(w, keep.Report())
			})
		}

		{
			//restful api
			svr := handler.New(
				provideConfig(),
				sys.ledger,
				sys.repayments,
				sys.origination,
				sys.rollovers,
				sys.fees,
				loans,
			)
			mux.Mount("/api", http.StripPrefix("/api", svr.HandleRestAPI()))
		}

		port, _ := cmd.Flags().GetInt("port")
		addr := fmt.Sprintf(":%d", port)

		server := &http.Server{
			Addr:    addr,
			Handler: mux,
		}

		ctx, quit := context.WithCancel(ctx)
		g, ctx := errgroup.WithContext(ctx)

		for idx := range workers {
			w := workers[idx]
			g.Go(func() error {
				return w.Run(ctx)
			})
		}

		g.Go(func() error {
			<-ctx.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			return server.Shutdown(ctx)
		})

		g.Go(func() error {
			logrus.Infoln("serve at", addr)
			if err := server.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}

			return nil
		})

		signal.WithContextFunc(ctx, quit)

		if err := g.Wait(); err != nil {
			logrus.WithError(err).Fatal("server aborted")
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntP("port", "p", 9000, "server port")
}
