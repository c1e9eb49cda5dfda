package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"yieldoracle/native/oracle"
	"yieldoracle/observability"
	"yieldoracle/services/oracled/config"
)

// Server exposes the oracle engine over an HTTP JSON API.
type Server struct {
	engine  *oracle.Engine
	logger  *slog.Logger
	auth    *Authenticator
	limiter *RateLimiter
	cfg     config.Config
}

// New constructs a Server around an initialised engine.
func New(engine *oracle.Engine, auth *Authenticator, cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine: engine,
		logger: logger,
		auth:   auth,
		limiter: NewRateLimiter(RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}),
		cfg: cfg,
	}
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Get("/meta", s.handleMeta)
			r.Get("/assets", s.handleAssets)
			r.Get("/price/last", s.handleLastPrice)
			r.Get("/price/cross/last", s.handleXLastPrice)
			r.Get("/price/cross", s.handleXPrice)
			r.Get("/price", s.handlePrice)
			r.Get("/twap/cross", s.handleXTwap)
			r.Get("/twap", s.handleTwap)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Post("/assets", s.handleAddAssets)
			r.Post("/prices", s.handleSetPrices)
			r.Post("/period", s.handleSetPeriod)
		})
	})
	return otelhttp.NewHandler(r, "oracled")
}

type metaResponse struct {
	Version         uint32 `json:"version"`
	Decimals        uint32 `json:"decimals"`
	ResolutionMs    uint32 `json:"resolution_ms"`
	PeriodMs        uint64 `json:"period_ms"`
	BaseAsset       string `json:"base_asset"`
	LastTimestamp   uint64 `json:"last_timestamp"`
	FxOracleAddress string `json:"fx_oracle,omitempty"`
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	defer s.observe("meta", time.Now())
	state := s.engine.State()
	decimals, err := state.Decimals()
	if err != nil {
		s.writeError(w, err)
		return
	}
	resolution, err := state.ResolutionMs()
	if err != nil {
		s.writeError(w, err)
		return
	}
	period, err := state.RetentionPeriodMs()
	if err != nil {
		s.writeError(w, err)
		return
	}
	base, err := state.BaseAsset()
	if err != nil {
		s.writeError(w, err)
		return
	}
	last, err := s.engine.LastTimestampSec()
	if err != nil {
		s.writeError(w, err)
		return
	}
	fxAddr, err := state.FxOracleAddress()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metaResponse{
		Version:         s.engine.Version(),
		Decimals:        decimals,
		ResolutionMs:    resolution,
		PeriodMs:        period,
		BaseAsset:       base.String(),
		LastTimestamp:   last,
		FxOracleAddress: fxAddr,
	})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	defer s.observe("assets", time.Now())
	assets, err := s.engine.State().Assets()
	if err != nil {
		s.writeError(w, err)
		return
	}
	fxs, err := s.engine.State().AssetFxSymbols()
	if err != nil {
		s.writeError(w, err)
		return
	}
	type entry struct {
		Asset string `json:"asset"`
		Fx    string `json:"fx"`
	}
	out := make([]entry, 0, len(assets))
	for i, asset := range assets {
		fx := ""
		if i < len(fxs) {
			fx = fxs[i]
		}
		out = append(out, entry{Asset: asset.String(), Fx: fx})
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": out})
}

type priceResponse struct {
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	Timestamp uint64 `json:"timestamp"`
}

func (s *Server) handleLastPrice(w http.ResponseWriter, r *http.Request) {
	defer s.observe("price_last", time.Now())
	asset, ok := s.queryAsset(w, r, "asset")
	if !ok {
		return
	}
	data, found, err := s.engine.LastPrice(asset)
	s.writePriceResult(w, asset, data, found, err)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	defer s.observe("price", time.Now())
	asset, ok := s.queryAsset(w, r, "asset")
	if !ok {
		return
	}
	ts, ok := s.queryUint(w, r, "timestamp")
	if !ok {
		return
	}
	data, found, err := s.engine.Price(asset, ts)
	s.writePriceResult(w, asset, data, found, err)
}

func (s *Server) handleXLastPrice(w http.ResponseWriter, r *http.Request) {
	defer s.observe("cross_last", time.Now())
	base, ok := s.queryAsset(w, r, "base")
	if !ok {
		return
	}
	quote, ok := s.queryAsset(w, r, "quote")
	if !ok {
		return
	}
	data, found, err := s.engine.XLastPrice(base, quote)
	s.writePriceResult(w, base, data, found, err)
}

func (s *Server) handleXPrice(w http.ResponseWriter, r *http.Request) {
	defer s.observe("cross", time.Now())
	base, ok := s.queryAsset(w, r, "base")
	if !ok {
		return
	}
	quote, ok := s.queryAsset(w, r, "quote")
	if !ok {
		return
	}
	ts, ok := s.queryUint(w, r, "timestamp")
	if !ok {
		return
	}
	data, found, err := s.engine.XPrice(base, quote, ts)
	s.writePriceResult(w, base, data, found, err)
}

func (s *Server) handleTwap(w http.ResponseWriter, r *http.Request) {
	defer s.observe("twap", time.Now())
	asset, ok := s.queryAsset(w, r, "asset")
	if !ok {
		return
	}
	records, ok := s.queryRecords(w, r)
	if !ok {
		return
	}
	value, found, err := s.engine.Twap(asset, records)
	s.writeTwapResult(w, asset, value, found, err)
}

func (s *Server) handleXTwap(w http.ResponseWriter, r *http.Request) {
	defer s.observe("twap_cross", time.Now())
	base, ok := s.queryAsset(w, r, "base")
	if !ok {
		return
	}
	quote, ok := s.queryAsset(w, r, "quote")
	if !ok {
		return
	}
	records, ok := s.queryRecords(w, r)
	if !ok {
		return
	}
	value, found, err := s.engine.XTwap(base, quote, records)
	s.writeTwapResult(w, base, value, found, err)
}

type assetPayload struct {
	Address string `json:"address,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
}

type addAssetsRequest struct {
	Assets    []assetPayload `json:"assets"`
	FxSymbols []string       `json:"fx_symbols"`
}

func (s *Server) handleAddAssets(w http.ResponseWriter, r *http.Request) {
	var req addAssetsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	assets := make([]oracle.Asset, 0, len(req.Assets))
	for _, payload := range req.Assets {
		asset, err := payload.toAsset()
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		assets = append(assets, asset)
	}
	if err := s.engine.State().AddAssets(assets, req.FxSymbols); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("assets registered", "count", len(assets))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setPricesRequest struct {
	Updates     []string `json:"updates"`
	TimestampMs uint64   `json:"timestamp_ms"`
}

func (s *Server) handleSetPrices(w http.ResponseWriter, r *http.Request) {
	var req setPricesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updates := make([]*big.Int, len(req.Updates))
	for i, raw := range req.Updates {
		raw = strings.TrimSpace(raw)
		if raw == "" || raw == "0" {
			continue
		}
		value, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid update value"})
			return
		}
		updates[i] = value
	}
	if err := s.engine.SetPrice(r.Context(), updates, req.TimestampMs); err != nil {
		if kind, ok := errorKind(err); ok {
			observability.Oracle().UpdateRejected(kind)
		}
		s.writeError(w, err)
		return
	}
	observability.Oracle().UpdateAccepted()
	s.logger.Info("price batch committed", "timestamp_ms", req.TimestampMs, "entries", len(updates))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setPeriodRequest struct {
	PeriodMs uint64 `json:"period_ms"`
}

func (s *Server) handleSetPeriod(w http.ResponseWriter, r *http.Request) {
	var req setPeriodRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.State().SetRetentionPeriod(req.PeriodMs); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("retention period updated", "period_ms", req.PeriodMs)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (p assetPayload) toAsset() (oracle.Asset, error) {
	switch {
	case p.Address != "":
		if !common.IsHexAddress(p.Address) {
			return oracle.Asset{}, errors.New("invalid asset address")
		}
		return oracle.AddressAsset(common.HexToAddress(p.Address)), nil
	case p.Symbol != "":
		return oracle.SymbolAsset(p.Symbol), nil
	default:
		return oracle.Asset{}, errors.New("asset requires address or symbol")
	}
}

func parseAsset(raw string) (oracle.Asset, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return oracle.Asset{}, errors.New("asset required")
	}
	if common.IsHexAddress(raw) {
		return oracle.AddressAsset(common.HexToAddress(raw)), nil
	}
	return oracle.SymbolAsset(raw), nil
}

func (s *Server) queryAsset(w http.ResponseWriter, r *http.Request, key string) (oracle.Asset, bool) {
	asset, err := parseAsset(r.URL.Query().Get(key))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": key + " required"})
		return oracle.Asset{}, false
	}
	return asset, true
}

func (s *Server) queryUint(w http.ResponseWriter, r *http.Request, key string) (uint64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid " + key})
		return 0, false
	}
	return value, true
}

func (s *Server) queryRecords(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("records"))
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || value == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid records"})
		return 0, false
	}
	return uint32(value), true
}

func (s *Server) writePriceResult(w http.ResponseWriter, asset oracle.Asset, data oracle.PriceData, found bool, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no price"})
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{
		Asset:     asset.String(),
		Price:     data.Price.String(),
		Timestamp: data.Timestamp,
	})
}

func (s *Server) writeTwapResult(w http.ResponseWriter, asset oracle.Asset, value *big.Int, found bool, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no price"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset": asset.String(),
		"twap":  value.String(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if kind, ok := errorKind(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": kind})
		return
	}
	s.logger.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

var errorKinds = []struct {
	err  error
	kind string
}{
	{oracle.ErrAlreadyInitialized, "already_initialized"},
	{oracle.ErrNotInitialized, "not_initialized"},
	{oracle.ErrUnauthorized, "unauthorized"},
	{oracle.ErrAssetMissing, "asset_missing"},
	{oracle.ErrAssetAlreadyExists, "asset_already_exists"},
	{oracle.ErrAssetLimitExceeded, "asset_limit_exceeded"},
	{oracle.ErrFxAlreadyExists, "fx_already_exists"},
	{oracle.ErrFxLimitExceeded, "fx_limit_exceeded"},
	{oracle.ErrFxArrayLengthMismatch, "fx_array_length_mismatch"},
	{oracle.ErrInvalidTimestamp, "invalid_timestamp"},
	{oracle.ErrInvalidUpdateLength, "invalid_update_length"},
	{oracle.ErrInvalidYieldRate, "invalid_yield_rate"},
	{oracle.ErrYieldRateDecreased, "yield_rate_decreased"},
	{oracle.ErrYieldRateDeviationExceeded, "yield_rate_deviation_exceeded"},
	{oracle.ErrStaleFxPrice, "stale_fx_price"},
	{oracle.ErrInvalidFxPrice, "invalid_fx_price"},
	{oracle.ErrFxOracleUnavailable, "fx_oracle_unavailable"},
	{oracle.ErrFxOracleTimestampDrift, "fx_oracle_timestamp_drift"},
	{oracle.ErrIntegerOverflow, "integer_overflow"},
}

func errorKind(err error) (string, bool) {
	for _, candidate := range errorKinds {
		if errors.Is(err, candidate.err) {
			return candidate.kind, true
		}
	}
	return "", false
}

func (s *Server) observe(op string, start time.Time) {
	observability.Oracle().ObserveQuery(op, time.Since(start))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
