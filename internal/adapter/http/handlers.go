package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/MeshkovD/star-burger/internal/domain"
)

const maxBodyBytes = 1 << 20

var errMalformedBody = errors.New("malformed JSON body")

func (s *Server) handleRegisterOrder(w http.ResponseWriter, r *http.Request) {
	order, err := decodeNewOrder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, err)
		return
	}

	created, err := s.service.RegisterOrder(r.Context(), order)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.service.Products(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Report(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// candidateResponse is one ranked restaurant. DistanceKm is null when the
// distance is unknown.
type candidateResponse struct {
	RestaurantID int64    `json:"restaurant_id,omitempty"`
	Label        string   `json:"label"`
	DistanceKm   *float64 `json:"distance_km"`
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	candidates, err := s.service.Candidates(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := make([]candidateResponse, 0, len(candidates))
	for _, c := range candidates {
		item := candidateResponse{RestaurantID: domain.CandidateRestaurantID(c), Label: c.String()}
		if e, ok := c.(domain.Eligible); ok {
			km := e.DistanceKm
			item.DistanceKm = &km
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

type assignRequest struct {
	RestaurantID int64 `json:"restaurant_id"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, errMalformedBody)
		return
	}
	if req.RestaurantID <= 0 {
		verr := &domain.ValidationError{}
		verr.Add("restaurant_id", "This field is required.")
		s.writeError(w, verr)
		return
	}

	order, err := s.service.Assign(r.Context(), id, req.RestaurantID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	order, err := s.service.Complete(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return 0, false
	}
	return id, true
}

// writeError maps service errors to status codes. Validation failures are
// reported as {"field": ["message"]}.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, verr.Fields)
	case errors.Is(err, errMalformedBody):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrRestaurantNotEligible), errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

// decodeNewOrder reads an order submission field by field so that a wrong
// JSON type is reported against the field instead of failing the whole body.
func decodeNewOrder(body io.Reader) (domain.NewOrder, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil || raw == nil {
		return domain.NewOrder{}, errMalformedBody
	}

	var (
		order domain.NewOrder
		verr  = &domain.ValidationError{}
	)
	decodeString(raw, "firstname", &order.Firstname, verr)
	decodeString(raw, "lastname", &order.Lastname, verr)
	decodeString(raw, "address", &order.Address, verr)

	phoneField := "phonenumber"
	if _, ok := raw[phoneField]; !ok {
		if _, ok := raw["phone"]; ok {
			phoneField = "phone"
		}
	}
	decodeString(raw, phoneField, &order.Phonenumber, verr)

	order.Items = decodeItems(raw, verr)

	if !verr.Empty() {
		return domain.NewOrder{}, verr
	}
	return order, nil
}

func decodeString(raw map[string]json.RawMessage, field string, dst *string, verr *domain.ValidationError) {
	value, ok := raw[field]
	if !ok {
		return
	}
	if isNull(value) {
		verr.Add(field, "This field may not be null.")
		return
	}
	if err := json.Unmarshal(value, dst); err != nil {
		verr.Add(field, "Not a valid string.")
	}
}

func decodeItems(raw map[string]json.RawMessage, verr *domain.ValidationError) []domain.NewOrderItem {
	value, ok := raw["products"]
	switch {
	case !ok:
		verr.Add("products", "This field is required.")
		return nil
	case isNull(value):
		verr.Add("products", "This field may not be null.")
		return nil
	case jsonType(value) != "list":
		verr.Add("products", `Expected a list of items but got type "`+jsonType(value)+`".`)
		return nil
	}

	var items []domain.NewOrderItem
	if err := json.Unmarshal(value, &items); err != nil {
		verr.Add("products", "Invalid product entry.")
		return nil
	}
	if len(items) == 0 {
		verr.Add("products", "This list may not be empty.")
	}
	return items
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// jsonType names the JSON type of v for validation messages.
func jsonType(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return "null"
	}
	switch v[0] {
	case '[':
		return "list"
	case '{':
		return "dict"
	case '"':
		return "str"
	case 't', 'f':
		return "bool"
	case 'n':
		return "null"
	default:
		return "int"
	}
}
