package rest

import (
	"context"
	"net/http"
	"sort"

	"github.com/KevinKickass/OpenBeamCore/internal/api/websocket"
	"github.com/KevinKickass/OpenBeamCore/internal/auth"
	"github.com/KevinKickass/OpenBeamCore/internal/journal"
	"github.com/KevinKickass/OpenBeamCore/internal/machine"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type EnergyRequest struct {
	Energy float64 `json:"energy" binding:"required,gt=0"` // eV
}

// WriteRequest carries one value per endpoint channel.
type WriteRequest struct {
	Values []float64 `json:"values" binding:"required"`
	Wait   bool      `json:"wait"`
}

type EndpointResponse struct {
	Peer     string    `json:"peer"`
	Target   string    `json:"target"`
	Quantity string    `json:"quantity"`
	Labels   []string  `json:"labels"`
	Values   []float64 `json:"values"`
	Units    []string  `json:"units"`
}

// GET /api/v1/energy
func (s *Server) getEnergy(c *gin.Context) {
	acc := s.lm.Accelerator()
	c.JSON(http.StatusOK, gin.H{
		"energy":          acc.Energy(),
		"magnet_rigidity": acc.Design().MagnetRigidity(),
	})
}

// PUT /api/v1/energy
func (s *Server) setEnergy(c *gin.Context) {
	var req EnergyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "ENERGY_400", err)
		return
	}

	acc := s.lm.Accelerator()
	if err := acc.SetEnergy(req.Energy); err != nil {
		abortWithError(c, "ENERGY_ERROR", "Failed to set energy", err)
		return
	}

	brho := acc.Design().MagnetRigidity()
	s.logger.Info("Energy changed",
		zap.Float64("energy", req.Energy),
		zap.Float64("magnet_rigidity", brho),
		zap.String("user", auth.Username(c)))
	s.wsHub.Broadcast(websocket.NewEnergyMessage(req.Energy, brho, auth.Username(c)))

	c.JSON(http.StatusOK, gin.H{
		"energy":          req.Energy,
		"magnet_rigidity": brho,
	})
}

// GET /api/v1/peers/:peer/elements
func (s *Server) listElements(c *gin.Context) {
	p, ok := s.peer(c)
	if !ok {
		return
	}
	arrays := p.Holder().ArrayNames()
	sort.Strings(arrays)
	c.JSON(http.StatusOK, gin.H{
		"peer":     p.Name(),
		"elements": p.Holder().Names(),
		"arrays":   arrays,
	})
}

// GET /api/v1/peers/:peer/targets/:target/:quantity
func (s *Server) readTarget(c *gin.Context) {
	p, ep, ok := s.endpoint(c)
	if !ok {
		return
	}
	values, err := ep.RW.Get(c.Request.Context())
	if err != nil {
		abortWithError(c, "READ_ERROR", "Failed to read "+ep.Target, err)
		return
	}
	c.JSON(http.StatusOK, EndpointResponse{
		Peer:     p.Name(),
		Target:   ep.Target,
		Quantity: string(ep.Quantity),
		Labels:   ep.Labels,
		Values:   values,
		Units:    ep.RW.Units(),
	})
}

// GET /api/v1/peers/:peer/targets/:target/:quantity/readback
func (s *Server) readbackTarget(c *gin.Context) {
	p, ep, ok := s.endpoint(c)
	if !ok {
		return
	}
	values, err := ep.RW.Readback(c.Request.Context())
	if err != nil {
		abortWithError(c, "READ_ERROR", "Failed to read back "+ep.Target, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"peer":     p.Name(),
		"target":   ep.Target,
		"quantity": ep.Quantity,
		"labels":   ep.Labels,
		"values":   values,
		"units":    ep.RW.Units(),
	})
}

// writePermission requires physics for the design model and operate for
// the machine.
func (s *Server) writePermission() gin.HandlerFunc {
	operate := auth.RequirePermission(auth.PermOperate)
	physics := auth.RequirePermission(auth.PermPhysics)
	return func(c *gin.Context) {
		if machine.PeerName(c.Param("peer")) == machine.PeerDesign {
			physics(c)
			return
		}
		operate(c)
	}
}

// PUT /api/v1/peers/:peer/targets/:target/:quantity
func (s *Server) writeTarget(c *gin.Context) {
	var req WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "WRITE_400", err)
		return
	}
	p, ep, ok := s.endpoint(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	write := ep.RW.Set
	if req.Wait {
		write = ep.RW.SetAndWait
	}
	if err := write(ctx, req.Values); err != nil {
		s.logger.Warn("Write rejected",
			zap.String("peer", p.Name()),
			zap.String("target", ep.Target),
			zap.String("quantity", string(ep.Quantity)),
			zap.Error(err))
		abortWithError(c, "WRITE_ERROR", "Failed to write "+ep.Target, err)
		return
	}

	user := auth.Username(c)
	units := ep.RW.Units()
	s.wsHub.Broadcast(websocket.NewSetpointMessage(websocket.SetpointData{
		Peer:     p.Name(),
		Target:   ep.Target,
		Quantity: string(ep.Quantity),
		Values:   req.Values,
		Units:    units,
		User:     user,
	}))

	resp := gin.H{
		"peer":     p.Name(),
		"target":   ep.Target,
		"quantity": ep.Quantity,
		"values":   req.Values,
		"units":    units,
	}
	if err := s.journal(ctx, p.Name(), ep, req.Values, user); err != nil {
		resp["journal_error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) journal(ctx context.Context, peer string, ep *machine.Endpoint, values []float64, user string) error {
	return s.lm.Journal().Publish(ctx, journal.Record{
		Peer:     peer,
		Target:   ep.Target,
		Quantity: string(ep.Quantity),
		Values:   values,
		Units:    ep.RW.Units(),
		User:     user,
	})
}

func (s *Server) peer(c *gin.Context) (machine.Peer, bool) {
	p, err := s.lm.Accelerator().Peer(machine.PeerName(c.Param("peer")))
	if err != nil {
		abortWithError(c, "PEER_404", "Unknown peer", err)
		return nil, false
	}
	return p, true
}

func (s *Server) endpoint(c *gin.Context) (machine.Peer, *machine.Endpoint, bool) {
	p, ok := s.peer(c)
	if !ok {
		return nil, nil, false
	}
	q, err := machine.ParseQuantity(c.Param("quantity"))
	if err != nil {
		abortWithError(c, "QUANTITY_404", "Unknown quantity", err)
		return nil, nil, false
	}
	ep, err := machine.Resolve(p, c.Param("target"), q)
	if err != nil {
		abortWithError(c, "TARGET_ERROR", "Cannot resolve "+c.Param("target"), err)
		return nil, nil, false
	}
	return p, ep, true
}
