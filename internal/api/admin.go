package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"agrimandi/internal/model"

	"github.com/gin-gonic/gin"
)

// handleAdminOverview 返回市场总览（用户/挂单/出价数量与成交总额）。
//
// GET /admin/overview
func (s *Server) handleAdminOverview(c *gin.Context) {
	ctx := c.Request.Context()

	var users, farmers, buyers, listings, available, bids, pendingBids int64
	var revenue struct {
		Total float64
		Count int64
	}

	db := s.db.WithContext(ctx)
	if err := db.Model(&model.User{}).Count(&users).Error; err != nil {
		s.logger.Error("admin overview failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	db.Model(&model.User{}).Where("role = ?", model.RoleFarmer).Count(&farmers)
	db.Model(&model.User{}).Where("role = ?", model.RoleBuyer).Count(&buyers)
	db.Model(&model.CropListing{}).Count(&listings)
	db.Model(&model.CropListing{}).Where("status = ?", model.ListingStatusAvailable).Count(&available)
	db.Model(&model.Bid{}).Count(&bids)
	db.Model(&model.Bid{}).Where("status = ?", model.BidStatusPending).Count(&pendingBids)
	db.Model(&model.Transaction{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Scan(&revenue)

	c.JSON(http.StatusOK, gin.H{
		"users":              users,
		"farmers":            farmers,
		"buyers":             buyers,
		"listings":           listings,
		"available_listings": available,
		"bids":               bids,
		"pending_bids":       pendingBids,
		"transactions":       revenue.Count,
		"total_revenue":      revenue.Total,
	})
}

type updateMSPRequest struct {
	Price float64 `json:"price" binding:"required,gt=0"`
}

// handleUpdateMSP 管理员修正一条 MSP 价格。
//
// PATCH /admin/msp/:id
func (s *Server) handleUpdateMSP(c *gin.Context) {
	mspID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid msp id"})
		return
	}

	var req updateMSPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res := s.db.WithContext(c.Request.Context()).Model(&model.MSPPrice{}).
		Where("id = ?", mspID).
		Update("price", req.Price)
	if res.Error != nil {
		s.logger.Error("update msp failed", slog.String("error", res.Error.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "msp price not found"})
		return
	}

	s.logger.Info("msp price updated",
		slog.Uint64("msp_id", mspID),
		slog.Float64("price", req.Price))
	c.JSON(http.StatusOK, gin.H{"price": req.Price})
}

// handleDeleteUser 管理员删除用户。
//
// DELETE /admin/users/:id
func (s *Server) handleDeleteUser(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if uint(userID) == getUserID(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete yourself"})
		return
	}

	res := s.db.WithContext(c.Request.Context()).
		Where("id = ? AND role <> ?", userID, model.RoleAdmin).
		Delete(&model.User{})
	if res.Error != nil {
		s.logger.Error("delete user failed", slog.String("error", res.Error.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	s.logger.Info("user deleted", slog.Uint64("user_id", userID))
	c.JSON(http.StatusOK, gin.H{"deleted": userID})
}
