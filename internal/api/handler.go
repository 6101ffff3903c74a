package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/guttosm/stockpulse/internal/domain/dto"
	"github.com/guttosm/stockpulse/internal/middleware"
	"github.com/guttosm/stockpulse/internal/service"
)

// Handler provides HTTP handlers for the stored-quote endpoints.
//
// Responsibilities:
//   - Validate path and query parameters
//   - Delegate to the quote service
//   - Translate results into response DTOs
type Handler struct {
	svc service.QuoteService
}

// NewHandler constructs a new Handler instance.
func NewHandler(svc service.QuoteService) *Handler {
	return &Handler{svc: svc}
}

// GetStats handles GET /api/v1/stats.
//
// GetStats godoc
// @Summary      Pipeline statistics
// @Description  Returns how many quotes are stored, for how many symbols, and the latest trading day
// @Tags         quotes
// @Produce      json
// @Success      200  {object}  models.PipelineStats  "Success"
// @Failure      500  {object}  dto.ErrorResponse     "Internal Error"
// @Router       /api/v1/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("stats query failed")
		middleware.AbortWithError(c, http.StatusInternalServerError, "failed to fetch stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetQuotes handles GET /api/v1/quotes/:symbol.
//
// Query Parameters:
//   - limit (int, optional): number of trading days to return, newest first. Default 10, capped at 100.
//
// Responses:
//   - 200 OK: QuotesResponse.
//   - 400 Bad Request: limit is not a positive integer.
//   - 404 Not Found: nothing stored for the symbol.
//   - 500 Internal Server Error: repository failure.
//
// GetQuotes godoc
// @Summary      Latest stored quotes for a symbol
// @Description  Returns the most recent stored quotes for the symbol, one per trading day
// @Tags         quotes
// @Produce      json
// @Param        symbol  path      string  true   "Ticker symbol" example(IBM)
// @Param        limit   query     int     false  "Max rows (1-100)" default(10)
// @Success      200     {object}  dto.QuotesResponse  "Success"
// @Failure      400     {object}  dto.ErrorResponse   "Bad Request"
// @Failure      404     {object}  dto.ErrorResponse   "Not Found"
// @Failure      500     {object}  dto.ErrorResponse   "Internal Error"
// @Router       /api/v1/quotes/{symbol} [get]
func (h *Handler) GetQuotes(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		middleware.AbortWithError(c, http.StatusBadRequest, "symbol is required", nil)
		return
	}

	limit := service.DefaultQuoteLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			middleware.AbortWithError(c, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	log := zerolog.Ctx(c.Request.Context()).With().Str("symbol", symbol).Int("limit", limit).Logger()
	quotes, err := h.svc.LatestQuotes(c.Request.Context(), symbol, limit)
	if err != nil {
		log.Error().Err(err).Msg("quotes query failed")
		middleware.AbortWithError(c, http.StatusInternalServerError, "failed to fetch quotes", err)
		return
	}
	if len(quotes) == 0 {
		log.Debug().Msg("no quotes stored")
		middleware.AbortWithError(c, http.StatusNotFound, "no data found", nil)
		return
	}

	resp := dto.QuotesResponse{Symbol: symbol, Quotes: make([]dto.QuoteResponse, 0, len(quotes))}
	for _, q := range quotes {
		resp.Quotes = append(resp.Quotes, dto.NewQuoteResponse(q))
	}
	c.JSON(http.StatusOK, resp)
}
