package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"agrimandi/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// createListingRequest 发布挂单的请求参数。
type createListingRequest struct {
	CropID       uint    `json:"crop_id" binding:"required"`
	Quantity     float64 `json:"quantity" binding:"required,gt=0"`
	PricePerUnit float64 `json:"price_per_unit" binding:"required,gt=0"`
	Description  string  `json:"description"`
}

type listingResponse struct {
	ID           uint      `json:"id"`
	CropID       uint      `json:"crop_id"`
	CropName     string    `json:"crop_name"`
	Unit         string    `json:"unit"`
	FarmerID     uint      `json:"farmer_id"`
	FarmerName   string    `json:"farmer_name"`
	Quantity     float64   `json:"quantity"`
	PricePerUnit float64   `json:"price_per_unit"`
	TotalValue   float64   `json:"total_value"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type listingRow struct {
	ID           uint      `gorm:"column:id"`
	CropID       uint      `gorm:"column:crop_id"`
	CropName     string    `gorm:"column:crop_name"`
	Unit         string    `gorm:"column:unit"`
	FarmerID     uint      `gorm:"column:farmer_id"`
	FarmerName   string    `gorm:"column:farmer_name"`
	Quantity     float64   `gorm:"column:quantity"`
	PricePerUnit float64   `gorm:"column:price_per_unit"`
	Description  string    `gorm:"column:description"`
	Status       string    `gorm:"column:status"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func toListingResponse(row listingRow) listingResponse {
	return listingResponse{
		ID:           row.ID,
		CropID:       row.CropID,
		CropName:     row.CropName,
		Unit:         row.Unit,
		FarmerID:     row.FarmerID,
		FarmerName:   row.FarmerName,
		Quantity:     row.Quantity,
		PricePerUnit: row.PricePerUnit,
		TotalValue:   row.Quantity * row.PricePerUnit,
		Description:  row.Description,
		Status:       row.Status,
		CreatedAt:    row.CreatedAt,
	}
}

// handleListCrops 返回作物目录。
//
// GET /crops
func (s *Server) handleListCrops(c *gin.Context) {
	crops := []model.Crop{}
	if err := s.db.WithContext(c.Request.Context()).Order("id ASC").Find(&crops).Error; err != nil {
		s.logger.Error("list crops failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list crops failed"})
		return
	}
	c.JSON(http.StatusOK, crops)
}

// handleListListings 返回所有在售挂单（买家市场页）。
//
// GET /listings
func (s *Server) handleListListings(c *gin.Context) {
	rows := []listingRow{}
	if err := s.listingQuery(c).
		Where("crop_listings.status = ?", model.ListingStatusAvailable).
		Order("crop_listings.id DESC").
		Scan(&rows).Error; err != nil {
		s.logger.Error("list listings failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list listings failed"})
		return
	}

	out := make([]listingResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toListingResponse(row))
	}
	c.JSON(http.StatusOK, out)
}

// handleMyListings 返回当前农户的全部挂单（含已售出/已下架）。
//
// GET /my/listings
func (s *Server) handleMyListings(c *gin.Context) {
	rows := []listingRow{}
	if err := s.listingQuery(c).
		Where("crop_listings.farmer_id = ?", getUserID(c)).
		Order("crop_listings.id DESC").
		Scan(&rows).Error; err != nil {
		s.logger.Error("list my listings failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list listings failed"})
		return
	}

	out := make([]listingResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toListingResponse(row))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listingQuery(c *gin.Context) *gorm.DB {
	return s.db.WithContext(c.Request.Context()).Table("crop_listings").
		Select("crop_listings.id, crop_listings.crop_id, crops.name AS crop_name, crops.unit, " +
			"crop_listings.farmer_id, users.full_name AS farmer_name, crop_listings.quantity, " +
			"crop_listings.price_per_unit, crop_listings.description, crop_listings.status, " +
			"crop_listings.created_at").
		Joins("JOIN crops ON crops.id = crop_listings.crop_id").
		Joins("JOIN users ON users.id = crop_listings.farmer_id")
}

// handleCreateListing 农户发布新挂单。
//
// POST /listings
func (s *Server) handleCreateListing(c *gin.Context) {
	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	farmerID := getUserID(c)

	var crop model.Crop
	if err := s.db.WithContext(c.Request.Context()).First(&crop, req.CropID).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown crop"})
		return
	}

	var count int64
	if err := s.db.WithContext(c.Request.Context()).Model(&model.CropListing{}).
		Where("farmer_id = ? AND status = ?", farmerID, model.ListingStatusAvailable).
		Count(&count).Error; err != nil {
		s.logger.Error("count listings failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count listings failed"})
		return
	}
	maxListings := s.cfg.App.MaxListingsPerFarmer
	if maxListings <= 0 {
		maxListings = 20
	}
	if count >= int64(maxListings) {
		c.JSON(http.StatusForbidden, gin.H{"error": "listing limit reached"})
		return
	}

	listing := model.CropListing{
		FarmerID:     farmerID,
		CropID:       req.CropID,
		Quantity:     req.Quantity,
		PricePerUnit: req.PricePerUnit,
		Description:  req.Description,
		Status:       model.ListingStatusAvailable,
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&listing).Error; err != nil {
		s.logger.Error("create listing failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create listing failed"})
		return
	}

	s.logger.Info("listing created",
		slog.Uint64("listing_id", uint64(listing.ID)),
		slog.Uint64("farmer_id", uint64(farmerID)),
		slog.String("crop", crop.Name))
	c.JSON(http.StatusCreated, gin.H{"id": listing.ID})
}

type updateListingStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// handleUpdateListingStatus 农户下架或标记售出自己的在售挂单。
//
// POST /listings/:id/status
func (s *Server) handleUpdateListingStatus(c *gin.Context) {
	listingID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}

	var req updateListingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target := model.ListingStatus(req.Status)
	if target != model.ListingStatusSold && target != model.ListingStatusWithdrawn {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	// 条件更新：只有本人的在售挂单可以变更状态
	res := s.db.WithContext(c.Request.Context()).Model(&model.CropListing{}).
		Where("id = ? AND farmer_id = ? AND status = ?", listingID, getUserID(c), model.ListingStatusAvailable).
		Update("status", target)
	if res.Error != nil {
		s.logger.Error("update listing status failed", slog.String("error", res.Error.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "listing not available or not yours"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(target)})
}

type mspResponse struct {
	ID       uint    `json:"id"`
	CropID   uint    `json:"crop_id"`
	CropName string  `json:"crop_name"`
	Unit     string  `json:"unit"`
	Season   string  `json:"season"`
	Price    float64 `json:"price"`
}

// handleListMSP 返回当季 MSP 价格表。
//
// GET /msp
func (s *Server) handleListMSP(c *gin.Context) {
	rows := []mspResponse{}
	if err := s.db.WithContext(c.Request.Context()).Table("msp_prices").
		Select("msp_prices.id, msp_prices.crop_id, crops.name AS crop_name, crops.unit, msp_prices.season, msp_prices.price").
		Joins("JOIN crops ON crops.id = msp_prices.crop_id").
		Where("msp_prices.season = ?", s.cfg.App.MSPSeason).
		Order("crops.name ASC").
		Scan(&rows).Error; err != nil {
		s.logger.Error("list msp failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list msp failed"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// procurementOption 政府收购渠道（静态目录）。
type procurementOption struct {
	CropName string  `json:"crop_name"`
	MSP      float64 `json:"msp"`
	Agency   string  `json:"agency"`
	Window   string  `json:"window"`
}

var procurementOptions = []procurementOption{
	{CropName: "Wheat", MSP: 2125, Agency: "Food Corporation of India (FCI)", Window: "Rabi marketing season"},
	{CropName: "Rice", MSP: 2100, Agency: "Food Corporation of India (FCI)", Window: "Kharif marketing season"},
	{CropName: "Cotton", MSP: 5515, Agency: "Cotton Corporation of India (CCI)", Window: "October - March"},
}

type belowMSPListingResponse struct {
	ListingID    uint    `json:"listing_id"`
	CropName     string  `json:"crop_name"`
	Unit         string  `json:"unit"`
	Quantity     float64 `json:"quantity"`
	PricePerUnit float64 `json:"price_per_unit"`
	MSPPrice     float64 `json:"msp_price"`
}

// handleProcurementOptions 返回农户低于 MSP 的在售挂单与政府收购渠道。
//
// GET /msp/procurement
func (s *Server) handleProcurementOptions(c *gin.Context) {
	farmerID := getUserID(c)

	rows := []belowMSPListingResponse{}
	if err := s.db.WithContext(c.Request.Context()).Table("crop_listings").
		Select("crop_listings.id AS listing_id, crops.name AS crop_name, crops.unit, "+
			"crop_listings.quantity, crop_listings.price_per_unit, msp_prices.price AS msp_price").
		Joins("JOIN crops ON crops.id = crop_listings.crop_id").
		Joins("JOIN msp_prices ON msp_prices.crop_id = crop_listings.crop_id AND msp_prices.season = ?", s.cfg.App.MSPSeason).
		Where("crop_listings.farmer_id = ? AND crop_listings.status = ? AND crop_listings.price_per_unit < msp_prices.price",
			farmerID, model.ListingStatusAvailable).
		Order("crop_listings.id ASC").
		Scan(&rows).Error; err != nil {
		s.logger.Error("list below-msp listings failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"below_msp_listings":  rows,
		"procurement_options": procurementOptions,
	})
}
