package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lg/nutrition-ledger-go-api/internal/catalog"
)

const maxFoodResults = 50

// searchFoods lists catalog food names containing q, for the food picker.
// GET /api/foods?q=&limit=.
func (h *Handler) searchFoods(c *gin.Context) {
	limit := maxFoodResults
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			apiError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxFoodResults)
	}

	names, err := h.foods.SearchFoods(c, c.Query("q"), limit)
	if err != nil {
		log.Printf("[searchFoods] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to search foods")
		return
	}
	// Ensure names is an empty array (not null) in JSON
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"foods": names})
}

// getFood returns one food's nutrient profile per 100g.
// GET /api/foods/:name.
func (h *Handler) getFood(c *gin.Context) {
	food, err := h.foods.Lookup(c, c.Param("name"))
	if errors.Is(err, catalog.ErrFoodNotFound) {
		apiError(c, http.StatusNotFound, "food not found")
		return
	}
	if err != nil {
		log.Printf("[getFood] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to look up food")
		return
	}
	c.JSON(http.StatusOK, food)
}
