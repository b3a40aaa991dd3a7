package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/transport/http/middleware"
	"github.com/stagepass/marketplace/internal/usecase"
)

// ListingHandler exposes resale listing endpoints.
type ListingHandler struct {
	listings *usecase.ListingService
	auth     *usecase.AuthService
}

// NewListingHandler constructs ListingHandler.
func NewListingHandler(listings *usecase.ListingService, auth *usecase.AuthService) *ListingHandler {
	return &ListingHandler{listings: listings, auth: auth}
}

// RegisterRoutes binds listing routes. Reads are public; writes require auth.
func (h *ListingHandler) RegisterRoutes(r *gin.RouterGroup) {
	authRequired := middleware.RequireAuth(h.auth)

	r.POST("", authRequired, h.create)
	r.GET("/:id", h.get)
	r.DELETE("/:id", authRequired, h.cancel)
	r.GET("/mine", authRequired, h.listMine)
}

// RegisterEventRoutes binds the per-event browse endpoint.
func (h *ListingHandler) RegisterEventRoutes(r *gin.RouterGroup) {
	r.GET("/:eventID/listings", h.listByEvent)
}

func (h *ListingHandler) create(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}
	role, _ := middleware.GetAuthenticatedRole(c)

	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid listing payload"))
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid price"))
		return
	}

	listing, err := h.listings.CreateListing(c.Request.Context(), userID, role, req.TicketID, req.EventID, price, req.ExpiresAt)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidPrice):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "price must be positive"))
		case errors.Is(err, usecase.ErrRoleForbidden):
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "role does not permit selling"))
		default:
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
		}
		return
	}

	c.JSON(http.StatusCreated, newListingResponse(*listing))
}

func (h *ListingHandler) get(c *gin.Context) {
	listing, err := h.listings.GetListing(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, usecase.ErrListingNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "listing not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to fetch listing"))
		return
	}

	c.JSON(http.StatusOK, newListingResponse(*listing))
}

func (h *ListingHandler) cancel(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	listing, err := h.listings.CancelListing(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrListingNotFound):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "listing not found"))
		case errors.Is(err, usecase.ErrListingForbidden):
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "only the seller may cancel a listing"))
		case errors.Is(err, usecase.ErrListingNotActive):
			c.JSON(http.StatusConflict, NewErrorResponse(c, "listing is no longer active"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to cancel listing"))
		}
		return
	}

	c.JSON(http.StatusOK, newListingResponse(*listing))
}

func (h *ListingHandler) listMine(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	listings, err := h.listings.ListBySeller(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list listings"))
		return
	}

	c.JSON(http.StatusOK, listingResponses(listings))
}

func (h *ListingHandler) listByEvent(c *gin.Context) {
	var status *domain.ListingStatus
	if raw := c.Query("status"); raw != "" {
		parsed := domain.ListingStatus(raw)
		switch parsed {
		case domain.ListingActive, domain.ListingSold, domain.ListingExpired, domain.ListingCancelled:
			status = &parsed
		default:
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown listing status"))
			return
		}
	}

	listings, err := h.listings.ListByEvent(c.Request.Context(), c.Param("eventID"), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list listings"))
		return
	}

	c.JSON(http.StatusOK, listingResponses(listings))
}

func listingResponses(listings []domain.ResaleListing) []ListingResponse {
	responses := make([]ListingResponse, 0, len(listings))
	for _, listing := range listings {
		responses = append(responses, newListingResponse(listing))
	}
	return responses
}
