package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/policy"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (a *api) registerCategoryRoutes(r *gin.Engine, authed gin.HandlerFunc) {
	g := r.Group("/categories")
	g.GET("/", a.listCategories)
	g.GET("/:id", a.getCategory)
	g.POST("/", authed, a.createCategory)
	g.PUT("/:id", authed, a.updateCategory)
	g.DELETE("/:id", authed, a.deleteCategory)
}

func (a *api) registerProductRoutes(r *gin.Engine, authed gin.HandlerFunc) {
	g := r.Group("/products")
	g.GET("/", a.listProducts)
	g.GET("/:id", a.getProduct)
	g.POST("/", authed, a.createProduct)
	g.PUT("/:id", authed, a.updateProduct)
	g.DELETE("/:id", authed, a.deleteProduct)
}

func (a *api) loadCategory(c *gin.Context) (*catalog.Category, bool) {
	cat, err := a.Categories.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return nil, false
	}
	if cat == nil {
		apperr.Respond(c, apperr.NotFound("category"))
		return nil, false
	}
	return cat, true
}

func (a *api) listCategories(c *gin.Context) {
	list, err := a.Categories.List(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) getCategory(c *gin.Context) {
	if cat, ok := a.loadCategory(c); ok {
		c.JSON(http.StatusOK, cat)
	}
}

func (a *api) createCategory(c *gin.Context) {
	if !allow(c, policy.CategoryCreate, policy.Resource{}) {
		return
	}
	var req validation.CategoryRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	cat, err := a.Categories.Create(c.Request.Context(), catalog.Category{Name: req.Name, Description: req.Description})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Header("Location", "/categories/"+cat.CategoryID)
	c.JSON(http.StatusCreated, cat)
}

func (a *api) updateCategory(c *gin.Context) {
	cat, ok := a.loadCategory(c)
	if !ok || !allow(c, policy.CategoryUpdate, policy.Resource{}) {
		return
	}
	var req validation.UpdateCategoryRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	updated, err := a.Categories.Update(c.Request.Context(), cat.CategoryID, catalog.CategoryChanges{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// deleteCategory leaves products that reference the category in place; they
// keep the category name they were written with.
func (a *api) deleteCategory(c *gin.Context) {
	cat, ok := a.loadCategory(c)
	if !ok || !allow(c, policy.CategoryDelete, policy.Resource{}) {
		return
	}
	if err := a.Categories.Delete(c.Request.Context(), cat.CategoryID); err != nil {
		apperr.Respond(c, err)
		return
	}
	deleted(c, "category")
}

func (a *api) loadProduct(c *gin.Context, id string) (*catalog.Product, bool) {
	p, err := a.Products.Get(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return nil, false
	}
	if p == nil {
		apperr.Respond(c, apperr.NotFound("product"))
		return nil, false
	}
	return p, true
}

func (a *api) listProducts(c *gin.Context) {
	list, err := a.Products.List(c.Request.Context(), catalog.ProductFilter{CategoryID: c.Query("category_id")})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) getProduct(c *gin.Context) {
	if p, ok := a.loadProduct(c, c.Param("id")); ok {
		c.JSON(http.StatusOK, p)
	}
}

func (a *api) createProduct(c *gin.Context) {
	if !allow(c, policy.ProductCreate, policy.Resource{}) {
		return
	}
	var req validation.ProductRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	p, err := a.Products.Create(c.Request.Context(), catalog.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		CategoryID:  req.CategoryID,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Header("Location", "/products/"+p.ProductID)
	c.JSON(http.StatusCreated, p)
}

func (a *api) updateProduct(c *gin.Context) {
	p, ok := a.loadProduct(c, c.Param("id"))
	if !ok || !allow(c, policy.ProductUpdate, policy.Resource{}) {
		return
	}
	var req validation.UpdateProductRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	updated, err := a.Products.Update(c.Request.Context(), p.ProductID, catalog.ProductChanges{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		CategoryID:  req.CategoryID,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (a *api) deleteProduct(c *gin.Context) {
	p, ok := a.loadProduct(c, c.Param("id"))
	if !ok || !allow(c, policy.ProductDelete, policy.Resource{}) {
		return
	}
	if err := a.Products.Delete(c.Request.Context(), p.ProductID); err != nil {
		apperr.Respond(c, err)
		return
	}
	deleted(c, "product")
}
