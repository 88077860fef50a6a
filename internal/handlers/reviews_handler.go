package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/policy"
	"github.com/imrishuroy/go-storefront/internal/reviews"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (a *api) registerReviewRoutes(r *gin.Engine, authed gin.HandlerFunc) {
	g := r.Group("/reviews")
	g.GET("/:product_id", a.listReviews)
	g.POST("/", authed, a.createReview)
	g.PUT("/:id", authed, a.updateReview)
	g.DELETE("/:id", authed, a.deleteReview)
}

func (a *api) listReviews(c *gin.Context) {
	p, ok := a.loadProduct(c, c.Param("product_id"))
	if !ok {
		return
	}
	list, err := a.Reviews.ListByProduct(c.Request.Context(), p.ProductID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) createReview(c *gin.Context) {
	if !allow(c, policy.ReviewCreate, policy.Resource{}) {
		return
	}
	var req validation.ReviewRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	rv, err := a.Reviews.Create(c.Request.Context(), reviews.Review{
		ProductID: req.ProductID,
		UserID:    actor(c).UserID,
		Rating:    req.Rating,
		Review:    req.Review,
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, rv)
}

func (a *api) loadReview(c *gin.Context) (*reviews.Review, bool) {
	rv, err := a.Reviews.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return nil, false
	}
	if rv == nil {
		apperr.Respond(c, apperr.NotFound("review"))
		return nil, false
	}
	return rv, true
}

func (a *api) updateReview(c *gin.Context) {
	rv, ok := a.loadReview(c)
	if !ok || !allow(c, policy.ReviewUpdate, policy.Owned(rv.UserID)) {
		return
	}
	var req validation.UpdateReviewRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	updated, err := a.Reviews.Update(c.Request.Context(), rv.ReviewID, reviews.Changes{Rating: req.Rating, Review: req.Review})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (a *api) deleteReview(c *gin.Context) {
	rv, ok := a.loadReview(c)
	if !ok || !allow(c, policy.ReviewDelete, policy.Owned(rv.UserID)) {
		return
	}
	if err := a.Reviews.Delete(c.Request.Context(), rv); err != nil {
		apperr.Respond(c, err)
		return
	}
	deleted(c, "review")
}
