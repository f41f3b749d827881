package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/itsneelabh/storefront/cart"
	"github.com/itsneelabh/storefront/catalog"
	"github.com/itsneelabh/storefront/checkout"
	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/order"
	"github.com/itsneelabh/storefront/tracker"
)

type healthResponse struct {
	Status  string `json:"status"`
	Online  bool   `json:"online"`
	Pending int    `json:"pending"`
	Catalog string `json:"catalog"`
}

// health --> GET /health
func (s *Server) health(c echo.Context) error {
	online := true
	if s.deps.Monitor != nil {
		online = s.deps.Monitor.Online()
	}
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Online:  online,
		Pending: s.deps.Queue.Len(c.Request().Context()),
		Catalog: s.deps.Catalog.Meta().String(),
	})
}

type catalogResponse struct {
	Meta      catalog.Meta    `json:"meta"`
	Status    string          `json:"status"`
	UpdatedAt string          `json:"updatedAt"`
	Query     string          `json:"query,omitempty"`
	Groups    []catalog.Group `json:"groups"`
	Count     int             `json:"count"`
}

func (s *Server) catalogView(query string) catalogResponse {
	view, meta := s.deps.Catalog.View(), s.deps.Catalog.Meta()
	groups := view.Search(query, nil)
	if groups == nil {
		groups = []catalog.Group{}
	}
	count := 0
	for _, g := range groups {
		count += len(g.Items)
	}
	return catalogResponse{
		Meta:      meta,
		Status:    meta.String(),
		UpdatedAt: meta.Timestamp(),
		Query:     strings.TrimSpace(query),
		Groups:    groups,
		Count:     count,
	}
}

// getCatalog --> GET /catalog?q=
func (s *Server) getCatalog(c echo.Context) error {
	return c.JSON(http.StatusOK, s.catalogView(c.QueryParam("q")))
}

// setFilters --> POST /catalog/filters
func (s *Server) setFilters(c echo.Context) error {
	f := s.deps.Catalog.Filters()
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	s.deps.Catalog.SetFilters(c.Request().Context(), f)
	return c.JSON(http.StatusOK, s.catalogView(c.QueryParam("q")))
}

// getCart --> GET /cart
func (s *Server) getCart(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Cart.Summary())
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Qty       int    `json:"qty"`
}

// addItem --> POST /cart/items
func (s *Server) addItem(c echo.Context) error {
	var req addItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	p, ok := s.deps.Catalog.Lookup(strings.TrimSpace(req.ProductID))
	if !ok {
		return fmt.Errorf("product %q: %w", req.ProductID, core.ErrNotFound)
	}
	item := cart.FromProduct(p)
	if req.Qty > 1 {
		item.Qty = req.Qty
	}
	if err := s.deps.Cart.Add(c.Request().Context(), item); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, s.deps.Cart.Summary())
}

type changeQtyRequest struct {
	Delta int `json:"delta"`
}

// changeQty --> PATCH /cart/items/:id
func (s *Server) changeQty(c echo.Context) error {
	var req changeQtyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := s.deps.Cart.Increment(c.Request().Context(), c.Param("id"), req.Delta); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.deps.Cart.Summary())
}

// removeItem --> DELETE /cart/items/:id
func (s *Server) removeItem(c echo.Context) error {
	if err := s.deps.Cart.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.deps.Cart.Summary())
}

// clearCart --> DELETE /cart?confirm=true
func (s *Server) clearCart(c echo.Context) error {
	confirmed, _ := strconv.ParseBool(c.QueryParam("confirm"))
	err := s.deps.Cart.Clear(c.Request().Context(), cart.ConfirmFunc(func(context.Context, string) bool {
		return confirmed
	}))
	if errors.Is(err, core.ErrNotConfirmed) {
		return c.JSON(http.StatusConflict, map[string]string{
			"error":  cart.ClearPrompt,
			"prompt": cart.ClearPrompt,
		})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.deps.Cart.Summary())
}

type optionsResponse struct {
	Payments     []checkout.PaymentChoice  `json:"payments"`
	Districts    []checkout.DistrictChoice `json:"districts"`
	ShowDelivery bool                      `json:"showDelivery"`
	Prefill      checkout.Form             `json:"prefill"`
}

// checkoutOptions --> GET /checkout/options
func (s *Server) checkoutOptions(c echo.Context) error {
	flow := s.deps.Checkout
	return c.JSON(http.StatusOK, optionsResponse{
		Payments:     flow.PaymentChoices(),
		Districts:    flow.DistrictChoices(),
		ShowDelivery: flow.Config().DeliveryFees,
		Prefill:      flow.Prefill(c.Request().Context()),
	})
}

// quote --> GET /checkout/quote?payment=&district=
func (s *Server) quote(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Checkout.Quote(c.QueryParam("payment"), c.QueryParam("district")))
}

// submit --> POST /checkout
func (s *Server) submit(c echo.Context) error {
	var form checkout.Form
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	req := c.Request()
	res, err := s.deps.Checkout.Submit(req.Context(), form, order.Source{
		From:      order.SourceCatalog,
		Domain:    req.Host,
		UserAgent: req.UserAgent(),
	})
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if res.Queued {
		status = http.StatusAccepted
	}
	return c.JSON(status, res)
}

type flushResponse struct {
	Sent        int    `json:"sent"`
	Coalesced   bool   `json:"coalesced"`
	LastOrderID string `json:"lastOrderId,omitempty"`
	Pending     int    `json:"pending"`
	Error       string `json:"error,omitempty"`
}

// flushQueue --> POST /queue/flush
func (s *Server) flushQueue(c echo.Context) error {
	ctx := c.Request().Context()
	res, err := s.deps.Queue.Flush(ctx)
	body := flushResponse{
		Sent:        res.Sent,
		Coalesced:   res.Coalesced,
		LastOrderID: res.LastOrderID,
		Pending:     s.deps.Queue.Len(ctx),
	}
	if err != nil {
		body.Error = err.Error()
		return c.JSON(http.StatusServiceUnavailable, body)
	}
	return c.JSON(http.StatusOK, body)
}

// getOrder --> GET /orders/:id, or GET /orders for the last order placed
func (s *Server) getOrder(c echo.Context) error {
	ctx := c.Request().Context()
	query := c.Param("id")
	if query == "" {
		query = c.QueryParam("id")
	}
	id, err := tracker.ResolveOrderID(ctx, s.deps.Local, query)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, tracker.MsgNoOrder)
	}
	view, err := s.deps.Tracker.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", tracker.MsgWatchFailed, err)
	}
	if !view.Exists {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("Pedido %s não encontrado.", id))
	}
	return c.JSON(http.StatusOK, view)
}

// downloadKey --> GET /keys/:field, the field as an indented JSON array
func (s *Server) downloadKey(c echo.Context) error {
	if s.deps.Keys == nil {
		return echo.NewHTTPError(http.StatusNotFound, "key download is not enabled")
	}
	field := strings.TrimSpace(c.Param("field"))
	if field == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "field is required")
	}
	var buf bytes.Buffer
	n, err := s.deps.Keys.DownloadKey(c.Request().Context(), field, &buf)
	if err != nil {
		return err
	}
	s.logger.Debug("Key downloaded", map[string]interface{}{
		"field":   field,
		"records": n,
	})
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", field+".json"))
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSONCharsetUTF8, buf.Bytes())
}
