package controllers

import (
	"net/http"

	"go.uber.org/multierr"

	"github.com/tmakori/sokohub-backend/api/responses"
	"github.com/tmakori/sokohub-backend/pkg/config"
	"github.com/tmakori/sokohub-backend/pkg/db"
	pkgerrors "github.com/tmakori/sokohub-backend/pkg/errors"
	"github.com/tmakori/sokohub-backend/pkg/logger"
	"github.com/tmakori/sokohub-backend/pkg/redis"
)

const envHeader = "X-SokoHub-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx := r.Context()
		var err error
		if dbP != nil {
			err = multierr.Append(err, dbP.Ping(ctx))
		}
		if redisP != nil {
			err = multierr.Append(err, redisP.Ping(ctx))
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "readiness check"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
