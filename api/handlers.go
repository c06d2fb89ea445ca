package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/crypticpy/Grantscope-2-sub004/domain"
	"github.com/crypticpy/Grantscope-2-sub004/storage"
)

// Deps are the collaborators of the board service routes.
type Deps struct {
	Store   Storage
	Auth    Authenticator
	Deduper Deduper
	Jobs    *Pool
	Logger  *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	e.GET(routeTasks, getTasks(d.Store, d.Auth, d.Logger))
	e.POST(routeCommands, postCommands(d.Store, d.Auth, d.Deduper, d.Logger))
	e.POST(routeJobs, postJobs(d.Store, d.Auth, d.Jobs, d.Logger))
	e.GET(routeJob, getJob(d.Store, d.Auth, d.Logger))
	e.GET(routeJobResult, getJobResult(d.Store, d.Auth, d.Logger))
	e.GET("/healthz", healthz(d.Store))
}

func healthz(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		return c.NoContent(http.StatusOK)
	}
}

// instrumented wraps a handler with request metrics and authentication.
func instrumented(route string, auth Authenticator, logger *log.Logger, h func(c echo.Context, m *requestMetrics, userID string) error) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, route)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			return c.String(http.StatusUnauthorized, authErr.Error())
		}
		return h(c, metrics, userID)
	}
}

func getTasks(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return instrumented(routeTasks, auth, logger, func(c echo.Context, m *requestMetrics, userID string) error {
		fetchStart := time.Now()
		items, err := store.FetchItems(c.Request().Context(), userID)
		m.ObserveStore(time.Since(fetchStart))
		if err != nil {
			m.SetErrorStage("storage")
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		m.SetItemsReturned(len(items))
		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, domain.TasksResponse{Tasks: items})
		m.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			m.SetErrorStage("encode_response")
		}
		return err
	})
}

func postCommands(store Storage, auth Authenticator, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return instrumented(routeCommands, auth, logger, func(c echo.Context, m *requestMetrics, userID string) error {
		ctx := c.Request().Context()
		dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, postCommandMaxSize))
		dec.DisallowUnknownFields()
		cmds := make([]domain.Command, 0, 4)
		if err := dec.Decode(&cmds); err != nil {
			m.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, domain.CommandsResponse{Error: "invalid body"})
		}
		keys := finalizeCommands(cmds)

		dedupeStart := time.Now()
		added, err := deduper.AddMany(ctx, userID, keys)
		m.ObserveStore(time.Since(dedupeStart))
		if err != nil {
			if rerr := deduper.Release(context.WithoutCancel(ctx), userID, keys, added); rerr != nil {
				logger.WithError(rerr).WithField("user", userID).Error("dedupe rollback failed")
			}
			m.SetErrorStage("dedupe")
			return c.JSON(http.StatusInternalServerError, domain.CommandsResponse{Error: "failed to record commands"})
		}

		results, status := applyCommands(ctx, store, deduper, logger, m, userID, cmds, added)
		rejected := 0
		for _, r := range results {
			if r.Status == domain.CommandRejected {
				rejected++
			}
		}
		m.SetCommands(len(cmds), rejected)
		if status != http.StatusOK {
			m.SetErrorStage("apply")
		}
		return c.JSON(status, domain.CommandsResponse{Results: results})
	})
}

// finalizeCommands fills in missing idempotency keys and stamps every
// command. It returns the keys in command order.
func finalizeCommands(cmds []domain.Command) []string {
	keys := make([]string, len(cmds))
	for i := range cmds {
		if cmds[i].IdempotencyKey == "" {
			cmds[i].IdempotencyKey = uuid.NewString()
		}
		cmds[i].ID = cmds[i].IdempotencyKey
		cmds[i].Timestamp = nextTimestamp()
		keys[i] = cmds[i].IdempotencyKey
	}
	return keys
}

// applyCommands applies each newly seen command in order. A command that
// fails releases its idempotency key so the client may retry it. The status
// is the worst outcome of the batch.
func applyCommands(ctx context.Context, store Storage, deduper Deduper, logger *log.Logger, m *requestMetrics, userID string, cmds []domain.Command, added []bool) ([]domain.CommandResult, int) {
	results := make([]domain.CommandResult, len(cmds))
	status := http.StatusOK
	worsen := func(code int) {
		if code > status {
			status = code
		}
	}
	for i, cmd := range cmds {
		res := domain.CommandResult{IdempotencyKey: cmd.IdempotencyKey}
		if !added[i] {
			res.Status = domain.CommandDuplicate
			results[i] = res
			continue
		}

		var code int
		mut, err := cmd.Mutation()
		if err == nil {
			applyStart := time.Now()
			err = store.ApplyMutation(ctx, userID, mut)
			m.ObserveStore(time.Since(applyStart))
			switch {
			case err == nil:
			case errors.Is(err, storage.ErrConflict):
				code = http.StatusConflict
			default:
				code = http.StatusInternalServerError
			}
		} else {
			code = http.StatusBadRequest
		}

		if err == nil {
			res.Status = domain.CommandApplied
			results[i] = res
			continue
		}
		if rerr := deduper.Remove(context.WithoutCancel(ctx), userID, cmd.IdempotencyKey); rerr != nil {
			logger.WithError(rerr).WithFields(log.Fields{"key": cmd.IdempotencyKey, "user": userID}).Error("dedupe rollback failed")
		}
		logger.WithError(err).WithFields(log.Fields{"key": cmd.IdempotencyKey, "user": userID, "type": cmd.Type}).Warn("command rejected")
		res.Status = domain.CommandRejected
		res.Error = err.Error()
		results[i] = res
		worsen(code)
	}
	return results, status
}

func postJobs(store Storage, auth Authenticator, pool *Pool, logger *log.Logger) echo.HandlerFunc {
	return instrumented(routeJobs, auth, logger, func(c echo.Context, m *requestMetrics, userID string) error {
		ctx := c.Request().Context()
		var req domain.JobRequest
		if err := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, postJobMaxSize)).Decode(&req); err != nil {
			m.SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		switch {
		case req.Kind != domain.JobKindBrief && req.Kind != domain.JobKindScan:
			m.SetErrorStage("validate")
			return c.String(http.StatusBadRequest, "unknown job kind")
		case req.Kind == domain.JobKindBrief && req.ItemID == "":
			m.SetErrorStage("validate")
			return c.String(http.StatusBadRequest, "itemId is required for a brief")
		}

		createStart := time.Now()
		snap, err := store.CreateJob(ctx, userID, req.Kind, req.ItemID)
		m.ObserveStore(time.Since(createStart))
		if err != nil {
			m.SetErrorStage("storage")
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if pool == nil || !pool.Submit(userID, snap) {
			logger.WithField("job_id", snap.JobID).Warn("job pool saturated")
			snap.Status = domain.JobFailed
			snap.Error = "job queue is full, try again later"
			if err := store.UpdateJob(context.WithoutCancel(ctx), userID, snap); err != nil {
				logger.WithError(err).WithField("job_id", snap.JobID).Error("mark rejected job failed")
			}
			m.SetErrorStage("enqueue")
			return c.String(http.StatusServiceUnavailable, snap.Error)
		}
		return c.JSON(http.StatusAccepted, domain.JobAccepted{JobID: snap.JobID, Status: snap.Status})
	})
}

func getJob(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return instrumented(routeJob, auth, logger, func(c echo.Context, m *requestMetrics, userID string) error {
		fetchStart := time.Now()
		snap, err := store.GetJob(c.Request().Context(), userID, c.Param("id"))
		m.ObserveStore(time.Since(fetchStart))
		if errors.Is(err, storage.ErrNotFound) {
			m.SetErrorStage("not_found")
			return c.String(http.StatusNotFound, "unknown job")
		}
		if err != nil {
			m.SetErrorStage("storage")
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, snap)
	})
}

func getJobResult(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return instrumented(routeJobResult, auth, logger, func(c echo.Context, m *requestMetrics, userID string) error {
		fetchStart := time.Now()
		doc, err := store.FetchResult(c.Request().Context(), userID, c.Param("id"))
		m.ObserveStore(time.Since(fetchStart))
		if errors.Is(err, storage.ErrNotFound) {
			m.SetErrorStage("not_found")
			return c.String(http.StatusNotFound, "no result for job")
		}
		if err != nil {
			m.SetErrorStage("storage")
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, doc)
	})
}
