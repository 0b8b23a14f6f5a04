// Package service exposes the estimator parameter surface and loop status
// over HTTP.
package service

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/jointctl/internal/estimator"
	"github.com/san-kum/jointctl/internal/loop"
)

// Target is the running loop as seen by the service.
type Target interface {
	SetKalmanParameters(qAngle, qRate, rAngle float64) bool
	KalmanParameters() estimator.Params
	KalmanCovariance() mat.Symmetric
	Status() loop.Status
}

type Server struct {
	app    *fiber.App
	addr   string
	target Target
}

func New(addr string, target Target) *Server {
	s := &Server{addr: addr, target: target}

	app := fiber.New(fiber.Config{
		AppName:               "jointctl",
		DisableStartupMessage: true,
	})

	app.Get("/status", s.handleStatus)
	app.Get("/kalman/params", s.handleGetKalman)
	app.Post("/kalman/params", s.handleSetKalman)

	s.app = app
	return s
}

func (s *Server) App() *fiber.App { return s.app }

// Start blocks serving on the configured address.
func (s *Server) Start() error {
	log.WithField("addr", s.addr).Info("parameter service listening")
	return s.app.Listen(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.target.Status())
}

// KalmanState is the current estimator configuration together with its
// error covariance, row major.
type KalmanState struct {
	estimator.Params
	Covariance [2][2]float64 `json:"covariance"`
}

func (s *Server) handleGetKalman(c *fiber.Ctx) error {
	cov := s.target.KalmanCovariance()
	st := KalmanState{Params: s.target.KalmanParameters()}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			st.Covariance[i][j] = cov.At(i, j)
		}
	}
	return c.JSON(st)
}

// KalmanRequest carries all three noise parameters; none may be omitted.
type KalmanRequest struct {
	QAngle *float64 `json:"q_angle"`
	QRate  *float64 `json:"q_rate"`
	RAngle *float64 `json:"r_angle"`
}

func (r KalmanRequest) check() error {
	if r.QAngle == nil || r.QRate == nil || r.RAngle == nil {
		return errors.New("q_angle, q_rate and r_angle are required")
	}
	return nil
}

type KalmanResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleSetKalman(c *fiber.Ctx) error {
	var req KalmanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(KalmanResponse{Error: err.Error()})
	}
	if err := req.check(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(KalmanResponse{Error: err.Error()})
	}

	ok := s.target.SetKalmanParameters(*req.QAngle, *req.QRate, *req.RAngle)
	log.WithFields(log.Fields{
		"q_angle": *req.QAngle,
		"q_rate":  *req.QRate,
		"r_angle": *req.RAngle,
		"ok":      ok,
	}).Info("estimator parameters requested")

	return c.JSON(KalmanResponse{OK: ok})
}
