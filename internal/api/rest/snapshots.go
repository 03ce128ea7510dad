package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenBeamCore/internal/api/websocket"
	"github.com/KevinKickass/OpenBeamCore/internal/auth"
	"github.com/KevinKickass/OpenBeamCore/internal/machine"
	"github.com/KevinKickass/OpenBeamCore/internal/storage"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateSnapshotRequest struct {
	Name     string `json:"name" binding:"required"`
	Target   string `json:"target" binding:"required"`
	Peer     string `json:"peer"`
	Quantity string `json:"quantity" binding:"omitempty,oneof=strengths hardwares"`
}

func (s *Server) requireSnapshots(c *gin.Context) {
	if s.lm.Snapshots() == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable,
			types.NewErrorResponse("SNAPSHOT_503", "Snapshots need the database", nil))
		return
	}
	c.Next()
}

// GET /api/v1/snapshots?target=QUADS
func (s *Server) listSnapshots(c *gin.Context) {
	infos, err := s.lm.Snapshots().ListSnapshots(c.Request.Context(), s.lm.Accelerator().Name(), c.Query("target"))
	if err != nil {
		abortWithError(c, "SNAPSHOT_ERROR", "Failed to list snapshots", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshots": infos,
		"count":     len(infos),
	})
}

// GET /api/v1/snapshots/:id
func (s *Server) getSnapshot(c *gin.Context) {
	snap, ok := s.loadSnapshot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snap)
}

// POST /api/v1/snapshots
func (s *Server) createSnapshot(c *gin.Context) {
	var req CreateSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "SNAPSHOT_400", err)
		return
	}
	if req.Peer == "" {
		req.Peer = string(machine.PeerLive)
	}
	if req.Quantity == "" {
		req.Quantity = storage.QuantityStrengths
	}

	acc := s.lm.Accelerator()
	p, err := acc.Peer(machine.PeerName(req.Peer))
	if err != nil {
		abortWithError(c, "PEER_404", "Unknown peer", err)
		return
	}
	ep, err := machine.Resolve(p, req.Target, machine.Quantity(req.Quantity))
	if err != nil {
		abortWithError(c, "TARGET_ERROR", "Cannot resolve "+req.Target, err)
		return
	}

	ctx := c.Request.Context()
	snap, err := storage.Capture(ctx, storage.SnapshotInfo{
		Name:        req.Name,
		Accelerator: acc.Name(),
		Peer:        p.Name(),
		Target:      ep.Target,
		Quantity:    req.Quantity,
		CreatedBy:   auth.Username(c),
	}, ep.Labels, ep.RW)
	if err != nil {
		abortWithError(c, "SNAPSHOT_ERROR", "Failed to capture "+req.Target, err)
		return
	}
	if err := s.lm.Snapshots().SaveSnapshot(ctx, snap); err != nil {
		abortWithError(c, "SNAPSHOT_ERROR", "Failed to save snapshot", err)
		return
	}

	s.logger.Info("Snapshot saved",
		zap.String("id", snap.ID.String()),
		zap.String("name", snap.Name),
		zap.String("target", snap.Target))
	c.JSON(http.StatusCreated, snap)
}

// POST /api/v1/snapshots/:id/restore
func (s *Server) restoreSnapshot(c *gin.Context) {
	snap, ok := s.loadSnapshot(c)
	if !ok {
		return
	}

	p, err := s.lm.Accelerator().Peer(machine.PeerName(snap.Peer))
	if err != nil {
		abortWithError(c, "PEER_404", "Unknown peer", err)
		return
	}
	if machine.PeerName(snap.Peer) == machine.PeerDesign {
		if id, _ := auth.CurrentIdentity(c); !id.Has(auth.PermPhysics) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "insufficient permissions",
				"required": string(auth.PermPhysics),
			})
			return
		}
	}
	ep, err := machine.Resolve(p, snap.Target, machine.Quantity(snap.Quantity))
	if err != nil {
		abortWithError(c, "TARGET_ERROR", "Cannot resolve "+snap.Target, err)
		return
	}

	ctx := c.Request.Context()
	if err := storage.Restore(ctx, snap, ep.Labels, ep.RW); err != nil {
		abortWithError(c, "RESTORE_ERROR", "Failed to restore snapshot", err)
		return
	}

	values, _ := ep.RW.Get(ctx)
	user := auth.Username(c)
	s.wsHub.Broadcast(websocket.NewSetpointMessage(websocket.SetpointData{
		Peer:     p.Name(),
		Target:   ep.Target,
		Quantity: string(ep.Quantity),
		Values:   values,
		Units:    ep.RW.Units(),
		User:     user,
	}))
	resp := gin.H{
		"message":  "snapshot restored",
		"id":       snap.ID,
		"target":   snap.Target,
		"restored": len(snap.Values),
	}
	if err := s.journal(ctx, p.Name(), ep, values, user); err != nil {
		resp["journal_error"] = err.Error()
	}
	s.logger.Info("Snapshot restored",
		zap.String("id", snap.ID.String()),
		zap.String("target", snap.Target),
		zap.String("user", user))
	c.JSON(http.StatusOK, resp)
}

// DELETE /api/v1/snapshots/:id
func (s *Server) deleteSnapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "SNAPSHOT_400", err)
		return
	}
	if err := s.lm.Snapshots().DeleteSnapshot(c.Request.Context(), id); err != nil {
		abortWithError(c, "SNAPSHOT_ERROR", "Failed to delete snapshot", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) loadSnapshot(c *gin.Context) (*storage.Snapshot, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "SNAPSHOT_400", err)
		return nil, false
	}
	snap, err := s.lm.Snapshots().LoadSnapshot(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, "SNAPSHOT_ERROR", "Failed to load snapshot", err)
		return nil, false
	}
	return snap, true
}
