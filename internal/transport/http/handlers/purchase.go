package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/transport/http/middleware"
	"github.com/stagepass/marketplace/internal/usecase"
)

// PurchaseHandler exposes the buy flow.
type PurchaseHandler struct {
	purchases *usecase.PurchaseService
	auth      *usecase.AuthService
}

// NewPurchaseHandler constructs PurchaseHandler.
func NewPurchaseHandler(purchases *usecase.PurchaseService, auth *usecase.AuthService) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases, auth: auth}
}

// RegisterRoutes binds purchase routes, applying optional middleware ahead of
// the initiate handler.
func (h *PurchaseHandler) RegisterRoutes(r *gin.RouterGroup, initiateMiddlewares ...gin.HandlerFunc) {
	authRequired := middleware.RequireAuth(h.auth)

	chain := []gin.HandlerFunc{authRequired}
	chain = append(chain, initiateMiddlewares...)
	chain = append(chain, h.initiate)
	r.POST("/listings/:id/purchase", chain...)

	r.GET("/purchases", authRequired, h.list)
	r.GET("/purchases/:id", authRequired, h.get)
}

func (h *PurchaseHandler) initiate(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}
	role, _ := middleware.GetAuthenticatedRole(c)

	intent, err := h.purchases.InitiatePurchase(c.Request.Context(), c.Param("id"), userID, role)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrListingNotFound):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "listing not found"))
		case errors.Is(err, usecase.ErrListingNotActive):
			c.JSON(http.StatusConflict, NewErrorResponse(c, "listing is no longer active"))
		case errors.Is(err, usecase.ErrListingClaimed):
			c.JSON(http.StatusConflict, NewErrorResponse(c, "listing was just claimed by another buyer"))
		case errors.Is(err, usecase.ErrSelfPurchase):
			c.JSON(http.StatusUnprocessableEntity, NewErrorResponse(c, "cannot purchase your own listing"))
		case errors.Is(err, usecase.ErrRoleForbidden):
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "role does not permit purchasing"))
		case errors.Is(err, usecase.ErrCheckoutUnavailable):
			c.JSON(http.StatusBadGateway, NewErrorResponse(c, "checkout unavailable, listing released"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to initiate purchase"))
		}
		return
	}

	c.JSON(http.StatusCreated, CheckoutResponse{
		PurchaseID:  intent.PurchaseID,
		ListingID:   intent.ListingID,
		Subtotal:    intent.Subtotal.StringFixed(2),
		Fee:         intent.Fee.StringFixed(2),
		Total:       intent.Total.StringFixed(2),
		RedirectURL: intent.RedirectURL,
		ExpiresAt:   intent.ExpiresAt,
	})
}

func (h *PurchaseHandler) list(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	purchases, err := h.purchases.ListPurchases(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list purchases"))
		return
	}

	responses := make([]PurchaseResponse, 0, len(purchases))
	for _, purchase := range purchases {
		responses = append(responses, newPurchaseResponse(purchase))
	}

	c.JSON(http.StatusOK, responses)
}

func (h *PurchaseHandler) get(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	purchase, err := h.purchases.GetPurchase(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, usecase.ErrPurchaseNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "purchase not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to fetch purchase"))
		return
	}

	if purchase.BuyerID != userID {
		role, _ := middleware.GetAuthenticatedRole(c)
		if !role.Can(domain.CapAdministerUsers) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "purchase not found"))
			return
		}
	}

	c.JSON(http.StatusOK, newPurchaseResponse(*purchase))
}
