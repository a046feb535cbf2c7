package rewards

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ksred/astrade-api/pkg/middleware"
	"github.com/ksred/astrade-api/pkg/response"
)

// GinHandlers contains HTTP handlers for the rewards endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// Register mounts the rewards routes on an authenticated group
func (h *GinHandlers) Register(group *gin.RouterGroup) {
	group.GET("/daily-status", h.DailyStatusHandler())
	group.POST("/claim-daily", h.ClaimDailyHandler())
	group.POST("/record-activity", h.RecordActivityHandler())
	group.GET("/achievements", h.AchievementsHandler())
	group.GET("/streak-info", h.StreakInfoHandler())
	group.GET("/profile", h.ProfileHandler())
	group.GET("/nfts", h.ListNFTsHandler())
	group.GET("/nfts/stats", h.NFTStatsHandler())
	group.GET("/nfts/:nft_id", h.GetNFTHandler())
}

type claimRequest struct {
	RewardType string `json:"reward_type"`
}

func (h *GinHandlers) DailyStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := h.service.DailyStatus(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, status)
	}
}

// ClaimDailyHandler claims today's login reward. An already claimed day is a 400
// carrying the reason.
func (h *GinHandlers) ClaimDailyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req claimRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				response.BadRequest(c, "Invalid request body")
				return
			}
		}
		if req.RewardType != "" && req.RewardType != RewardTypeDaily {
			response.BadRequest(c, "unsupported reward_type: "+req.RewardType)
			return
		}

		result, err := h.service.ClaimDaily(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			response.Fail(c, err)
			return
		}
		if !result.Success {
			response.JSONError(c, http.StatusBadRequest, "ALREADY_CLAIMED", result.Message, nil)
			return
		}
		response.OK(c, result)
	}
}

func (h *GinHandlers) RecordActivityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.RecordActivity(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, result)
	}
}

func (h *GinHandlers) AchievementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		achievements, err := h.service.Achievements(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, achievements)
	}
}

func (h *GinHandlers) StreakInfoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := h.service.StreakInfo(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, info)
	}
}

func (h *GinHandlers) ProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := h.service.Profile(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, profile)
	}
}

// ListNFTsHandler accepts optional nft_type and rarity filters
func (h *GinHandlers) ListNFTsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		nfts, err := h.service.ListNFTs(c.Request.Context(), middleware.UserID(c), c.Query("nft_type"), c.Query("rarity"))
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, nfts)
	}
}

func (h *GinHandlers) NFTStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.service.NFTStats(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, stats)
	}
}

func (h *GinHandlers) GetNFTHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		nft, err := h.service.GetNFT(c.Request.Context(), middleware.UserID(c), c.Param("nft_id"))
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, nft)
	}
}
