package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/alert"
	"github.com/JakeFAU/pricewatch/internal/rules"
)

const (
	defaultRuleLimit = 50
	maxRuleLimit     = 500
	maxRequestBytes  = 64 << 10
)

// RuleService is the dialogue-facing rule API.
type RuleService interface {
	Create(ctx context.Context, owner, rawURL string, threshold decimal.Decimal) (alert.Rule, error)
	List(ctx context.Context, owner string) ([]alert.Rule, error)
	Delete(ctx context.Context, owner, id string) error
}

// RuleHandler exposes rule creation, listing and deletion.
type RuleHandler struct {
	rules  RuleService
	logger *zap.Logger
}

// NewRuleHandler wires the service and logger.
func NewRuleHandler(svc RuleService, logger *zap.Logger) *RuleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleHandler{rules: svc, logger: logger}
}

type createRuleRequest struct {
	URL string `json:"url"`
	// Threshold is either a JSON number or a string such as "1 299,50".
	Threshold json.RawMessage `json:"threshold"`
}

// Create handles POST /v1/users/{owner}/rules. It returns 201 with the rule,
// 400 for malformed input, 422 when the page cannot be read, or 500 when the
// store fails.
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	var req createRuleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	threshold, err := parseThresholdField(req.Threshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := h.rules.Create(r.Context(), owner, req.URL, threshold)
	if err != nil {
		h.writeServiceError(w, r, "create rule failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"rule": toRuleDTO(rule)})
}

// List handles GET /v1/users/{owner}/rules?limit=&offset=.
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	limit, offset, err := parseLimitOffset(r, defaultRuleLimit, maxRuleLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := h.rules.List(r.Context(), owner)
	if err != nil {
		h.writeServiceError(w, r, "list rules failed", err)
		return
	}
	total := len(list)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": toRuleDTOs(list[offset:end]),
		"total": total,
	})
}

// Delete handles DELETE /v1/users/{owner}/rules/{rule_id}. Rules owned by
// someone else are reported as missing.
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	id := strings.TrimSpace(chi.URLParam(r, "rule_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "rule_id is required")
		return
	}
	if err := h.rules.Delete(r.Context(), owner, id); err != nil {
		h.writeServiceError(w, r, "delete rule failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RuleHandler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg,
			zap.String("request_id", RequestID(r.Context())),
			zap.String("owner", chi.URLParam(r, "owner")),
			zap.Error(err),
		)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, alert.ErrNoExtractorForDomain), errors.Is(err, alert.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, alert.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, alert.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseThresholdField(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Decimal{}, errors.New("threshold is required")
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Decimal{}, errors.New("invalid threshold")
		}
	}
	threshold, err := rules.ParseThreshold(text)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return threshold, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

type ruleDTO struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	Shop          string     `json:"shop"`
	ProductName   string     `json:"product_name"`
	LastPrice     string     `json:"last_price"`
	Threshold     string     `json:"threshold"`
	NotifiedPrice *string    `json:"notified_price,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CheckedAt     *time.Time `json:"checked_at,omitempty"`
}

func toRuleDTO(rule alert.Rule) ruleDTO {
	dto := ruleDTO{
		ID:          rule.ID,
		URL:         rule.URL,
		Shop:        rule.Shop,
		ProductName: rule.ProductName,
		LastPrice:   rule.LastPrice.StringFixed(2),
		Threshold:   rule.Threshold.StringFixed(2),
		CreatedAt:   rule.CreatedAt,
		CheckedAt:   rule.CheckedAt,
	}
	if rule.NotifiedPrice.Valid {
		np := rule.NotifiedPrice.Decimal.StringFixed(2)
		dto.NotifiedPrice = &np
	}
	return dto
}

func toRuleDTOs(in []alert.Rule) []ruleDTO {
	out := make([]ruleDTO, 0, len(in))
	for _, rule := range in {
		out = append(out, toRuleDTO(rule))
	}
	return out
}
