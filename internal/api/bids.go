package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"agrimandi/internal/market"

	"github.com/gin-gonic/gin"
)

// placeBidRequest 买家出价的请求参数。
type placeBidRequest struct {
	Amount float64 `json:"amount" binding:"required"`
}

type bidResponse struct {
	ID        uint      `json:"id"`
	ListingID uint      `json:"listing_id"`
	CropName  string    `json:"crop_name"`
	BuyerID   uint      `json:"buyer_id"`
	BuyerName string    `json:"buyer_name,omitempty"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type bidRow struct {
	ID        uint      `gorm:"column:id"`
	ListingID uint      `gorm:"column:listing_id"`
	CropName  string    `gorm:"column:crop_name"`
	BuyerID   uint      `gorm:"column:buyer_id"`
	BuyerName string    `gorm:"column:buyer_name"`
	Amount    float64   `gorm:"column:amount"`
	Status    string    `gorm:"column:status"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// handlePlaceBid 买家对挂单出价。
//
// POST /listings/:id/bids
func (s *Server) handlePlaceBid(c *gin.Context) {
	listingID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}

	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bid, err := s.ledger.PlaceBid(c.Request.Context(), uint(listingID), getUserID(c), req.Amount)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": bid.ID, "status": string(bid.Status)})
}

// handleMyBids 返回买家自己的全部出价。
//
// GET /my/bids
func (s *Server) handleMyBids(c *gin.Context) {
	rows := []bidRow{}
	if err := s.db.WithContext(c.Request.Context()).Table("bids").
		Select("bids.id, bids.listing_id, crops.name AS crop_name, bids.buyer_id, "+
			"bids.bid_amount AS amount, bids.status, bids.created_at").
		Joins("JOIN crop_listings ON crop_listings.id = bids.listing_id").
		Joins("JOIN crops ON crops.id = crop_listings.crop_id").
		Where("bids.buyer_id = ?", getUserID(c)).
		Order("bids.id DESC").
		Scan(&rows).Error; err != nil {
		s.logger.Error("list my bids failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list bids failed"})
		return
	}

	c.JSON(http.StatusOK, toBidResponses(rows))
}

// handleFarmerBids 返回农户名下挂单收到的全部出价。
//
// GET /bids
func (s *Server) handleFarmerBids(c *gin.Context) {
	rows := []bidRow{}
	if err := s.db.WithContext(c.Request.Context()).Table("bids").
		Select("bids.id, bids.listing_id, crops.name AS crop_name, bids.buyer_id, "+
			"users.full_name AS buyer_name, bids.bid_amount AS amount, bids.status, bids.created_at").
		Joins("JOIN crop_listings ON crop_listings.id = bids.listing_id").
		Joins("JOIN crops ON crops.id = crop_listings.crop_id").
		Joins("JOIN users ON users.id = bids.buyer_id").
		Where("bids.farmer_id = ?", getUserID(c)).
		Order("bids.id DESC").
		Scan(&rows).Error; err != nil {
		s.logger.Error("list farmer bids failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list bids failed"})
		return
	}

	c.JSON(http.StatusOK, toBidResponses(rows))
}

func toBidResponses(rows []bidRow) []bidResponse {
	out := make([]bidResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, bidResponse{
			ID:        row.ID,
			ListingID: row.ListingID,
			CropName:  row.CropName,
			BuyerID:   row.BuyerID,
			BuyerName: row.BuyerName,
			Amount:    row.Amount,
			Status:    row.Status,
			CreatedAt: row.CreatedAt,
		})
	}
	return out
}

// decideBidRequest 农户处理出价的请求参数。
type decideBidRequest struct {
	Decision string `json:"decision" binding:"required"`
}

// handleDecideBid 农户接受或拒绝出价。
//
// POST /bids/:id/decision
func (s *Server) handleDecideBid(c *gin.Context) {
	bidID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bid id"})
		return
	}

	var req decideBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision := market.Decision(req.Decision)
	if decision != market.DecisionAccept && decision != market.DecisionReject {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid decision"})
		return
	}

	if err := s.ledger.Decide(c.Request.Context(), uint(bidID), getUserID(c), decision); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"decision": string(decision)})
}

// handleWithdrawBid 买家撤回自己 pending 状态的出价。
//
// DELETE /bids/:id
func (s *Server) handleWithdrawBid(c *gin.Context) {
	bidID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bid id"})
		return
	}

	if err := s.ledger.WithdrawBid(c.Request.Context(), uint(bidID), getUserID(c)); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": bidID})
}
