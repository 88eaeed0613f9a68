package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/logger"
	"github.com/tcgvision/cardmatch/internal/matcher"
)

// ImageRequest is the JSON body of the image endpoints. Fields a route does
// not use are ignored.
type ImageRequest struct {
	Image     string `json:"image"`               // base64, optionally a data URL
	HashType  string `json:"hash_type,omitempty"` // perceptual by default
	TopN      *int   `json:"top_n,omitempty"`
	Threshold *int   `json:"threshold,omitempty"`
	CardID    string `json:"card_id,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success       bool               `json:"success"`
	Error         string             `json:"error"`
	Category      string             `json:"category"`
	Code          int                `json:"code"`
	CorrelationID string             `json:"correlation_id"`
	BestMatch     *matcher.Candidate `json:"best_match,omitempty"`
}

type healthResponse struct {
	Success bool `json:"success"`
	HealthResult
}

type matchResponse struct {
	Success bool `json:"success"`
	*MatchResult
}

type hashResponse struct {
	Success bool `json:"success"`
	*HashResult
}

type addResponse struct {
	Success bool `json:"success"`
	*AddResult
}

type recognizeResponse struct {
	Success bool                 `json:"success"`
	Result  *matcher.Recognition `json:"result"`
}

// Controller binds Service operations to echo routes.
type Controller struct {
	service *Service
	log     logger.Logger
}

// NewController returns a controller for service.
func NewController(service *Service, log logger.Logger) *Controller {
	if log == nil {
		log = GetLogger()
	}
	return &Controller{service: service, log: log}
}

// RegisterRoutes mounts the matching endpoints on e.
func (c *Controller) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", c.Health)
	e.POST("/match", c.Match)
	e.POST("/match_file", c.MatchFile)
	e.POST("/compute_hash", c.ComputeHash)
	e.POST("/add_card", c.AddCard)
	e.POST("/recognize", c.Recognize)
}

// Health handles GET /health.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, healthResponse{Success: true, HealthResult: c.service.Health()})
}

// Match handles POST /match.
func (c *Controller) Match(ctx echo.Context) error {
	req, data, err := c.bindImage(ctx)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	res, err := c.service.Match(ctx.Request().Context(), data, req.HashType, req.TopN)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, matchResponse{Success: true, MatchResult: res})
}

// MatchFile handles POST /match_file with a multipart "file" upload.
func (c *Controller) MatchFile(ctx echo.Context) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return c.HandleError(ctx, errors.InvalidInput("api", "no file uploaded"))
	}
	if fh.Filename == "" {
		return c.HandleError(ctx, errors.InvalidInput("api", "empty filename"))
	}

	var topN *int
	if raw := strings.TrimSpace(ctx.FormValue("top_n")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.HandleError(ctx, errors.InvalidInput("api", "top_n must be an integer"))
		}
		topN = &n
	}

	file, err := fh.Open()
	if err != nil {
		return c.HandleError(ctx, errors.New(err).
			Component("api").
			Category(errors.CategoryInvalidInput).
			Context("operation", "open_upload").
			Build())
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.HandleError(ctx, errors.New(err).
			Component("api").
			Category(errors.CategoryInvalidInput).
			Context("operation", "read_upload").
			Build())
	}

	res, err := c.service.Match(ctx.Request().Context(), data, ctx.FormValue("hash_type"), topN)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, matchResponse{Success: true, MatchResult: res})
}

// ComputeHash handles POST /compute_hash.
func (c *Controller) ComputeHash(ctx echo.Context) error {
	req, data, err := c.bindImage(ctx)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	res, err := c.service.ComputeHash(ctx.Request().Context(), data, req.CardID)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, hashResponse{Success: true, HashResult: res})
}

// AddCard handles POST /add_card.
func (c *Controller) AddCard(ctx echo.Context) error {
	var req ImageRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, badBody(err))
	}
	if strings.TrimSpace(req.Image) == "" || strings.TrimSpace(req.CardID) == "" {
		return c.HandleError(ctx, errors.InvalidInput("api", "missing image or card_id"))
	}
	data, err := DecodeBase64Image(req.Image)
	if err != nil {
		return c.HandleError(ctx, err)
	}

	res, err := c.service.AddCard(ctx.Request().Context(), data, req.CardID)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, addResponse{Success: true, AddResult: res})
}

// Recognize handles POST /recognize.
func (c *Controller) Recognize(ctx echo.Context) error {
	req, data, err := c.bindImage(ctx)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	res, err := c.service.Recognize(ctx.Request().Context(), data, req.HashType, req.Threshold)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, recognizeResponse{Success: true, Result: res})
}

func (c *Controller) bindImage(ctx echo.Context) (*ImageRequest, []byte, error) {
	var req ImageRequest
	if err := ctx.Bind(&req); err != nil {
		return nil, nil, badBody(err)
	}
	data, err := DecodeBase64Image(req.Image)
	if err != nil {
		return nil, nil, err
	}
	return &req, data, nil
}

// HandleError writes err as an ErrorResponse with the status its category maps to.
func (c *Controller) HandleError(ctx echo.Context, err error) error {
	status := StatusFor(err)
	resp := ErrorResponse{
		Error:         err.Error(),
		Category:      string(errors.CategoryOf(err)),
		Code:          status,
		CorrelationID: correlationID(ctx),
	}
	if status == http.StatusInternalServerError {
		resp.Category = "unexpected"
	}

	var weak *matcher.NoGoodMatchError
	if errors.As(err, &weak) {
		best := weak.Best
		resp.BestMatch = &best
	}

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("category", resp.Category),
		logger.Int("code", status),
		logger.Error(err),
	}
	if status >= http.StatusInternalServerError {
		c.log.Error("request failed", fields...)
	} else {
		c.log.Debug("request rejected", fields...)
	}

	return ctx.JSON(status, resp)
}

// HTTPErrorHandler renders errors raised outside the handlers (unknown
// routes, body limit, panics) in the same shape as handler errors.
func (c *Controller) HTTPErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		_ = c.HandleError(ctx, err)
		return
	}

	msg := http.StatusText(he.Code)
	if m, ok := he.Message.(string); ok && m != "" {
		msg = m
	}
	_ = ctx.JSON(he.Code, ErrorResponse{
		Error:         msg,
		Category:      "http",
		Code:          he.Code,
		CorrelationID: correlationID(ctx),
	})
}

// StatusFor maps an error category to an HTTP status.
func StatusFor(err error) int {
	switch errors.CategoryOf(err) {
	case errors.CategoryInvalidInput, errors.CategoryInvalidHashType,
		errors.CategoryDecode, errors.CategoryUnsupportedImage:
		return http.StatusBadRequest
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryNoMatch, errors.CategoryNoGoodMatch, errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryLimit:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func badBody(err error) error {
	return errors.New(err).
		Component("api").
		Category(errors.CategoryInvalidInput).
		Context("operation", "bind_request").
		Build()
}

func correlationID(ctx echo.Context) string {
	if id := ctx.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return uuid.NewString()
}
