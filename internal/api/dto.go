package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"guesthouse/internal/domain"
	"guesthouse/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type bookingRequest struct {
	RoomID    int64  `json:"room_id" validate:"required,gt=0"`
	CheckIn   string `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut  string `json:"check_out" validate:"required,datetime=2006-01-02"`
	PromoCode string `json:"promo_code" validate:"omitempty,max=64"`
}

type applyPromoRequest struct {
	Code     string `json:"code" validate:"required,max=64"`
	RoomID   int64  `json:"room_id" validate:"required,gt=0"`
	CheckIn  string `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut string `json:"check_out" validate:"required,datetime=2006-01-02"`
}

type createPromoRequest struct {
	Code          string  `json:"code" validate:"required,alphanum,max=64"`
	GuesthouseID  int64   `json:"guesthouse_id" validate:"required,gt=0"`
	DiscountType  string  `json:"discount_type" validate:"required,oneof=flat percentage"`
	DiscountValue float64 `json:"discount_value" validate:"gt=0"`
	StartDate     string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string  `json:"end_date" validate:"required,datetime=2006-01-02"`
	MaxUsage      *int    `json:"max_usage" validate:"omitempty,gt=0"`
}

type location struct {
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
}

type guesthouseRequest struct {
	Name        string    `json:"name" validate:"required,max=256"`
	Description string    `json:"description" validate:"max=4096"`
	Address     string    `json:"address" validate:"required,max=512"`
	City        string    `json:"city" validate:"required,max=256"`
	Country     string    `json:"country" validate:"required,max=128"`
	Location    *location `json:"location" validate:"omitempty"`
}

type roomRequest struct {
	Name          string   `json:"name" validate:"required,max=256"`
	PricePerNight float64  `json:"price_per_night" validate:"gt=0"`
	PricePerWeek  float64  `json:"price_per_week" validate:"gte=0"`
	PricePerMonth float64  `json:"price_per_month" validate:"gte=0"`
	Capacity      int      `json:"capacity" validate:"required,gte=1,lte=32"`
	Amenities     []string `json:"amenities" validate:"dive,required,max=64"`
	Images        []string `json:"images" validate:"dive,required,max=1024"`
}

type registerRequest struct {
	Email          string `json:"email" validate:"required,email"`
	Name           string `json:"name" validate:"required,max=256"`
	Role           string `json:"role" validate:"required,oneof=customer owner"`
	TelegramChatID int64  `json:"telegram_chat_id"`
}

// decodeBody reads a JSON body into dst and runs the struct validators.
func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", domain.ErrValidation)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// parseDay parses a YYYY-MM-DD value that already passed validation.
func parseDay(s string) time.Time {
	d, _ := time.Parse(models.DateLayout, s)
	return d
}

func (g guesthouseRequest) model() *models.Guesthouse {
	gh := &models.Guesthouse{
		Name:        g.Name,
		Description: g.Description,
		Address:     g.Address,
		City:        g.City,
		Country:     g.Country,
	}
	if g.Location != nil {
		gh.Location = &models.GeoPoint{Lng: g.Location.Lng, Lat: g.Location.Lat}
	}
	return gh
}

func (rr roomRequest) model() *models.Room {
	return &models.Room{
		Name:          rr.Name,
		PricePerNight: rr.PricePerNight,
		PricePerWeek:  rr.PricePerWeek,
		PricePerMonth: rr.PricePerMonth,
		Capacity:      rr.Capacity,
		Amenities:     rr.Amenities,
		Images:        rr.Images,
	}
}

func (p createPromoRequest) model() *models.Promo {
	return &models.Promo{
		Code:          p.Code,
		GuesthouseID:  p.GuesthouseID,
		DiscountType:  models.DiscountType(p.DiscountType),
		DiscountValue: p.DiscountValue,
		StartDate:     parseDay(p.StartDate),
		EndDate:       parseDay(p.EndDate),
		MaxUsage:      p.MaxUsage,
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", domain.ErrValidation, name)
	}
	return id, nil
}

func queryFloat(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidQuery, name)
	}
	return &v, nil
}

func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", domain.ErrInvalidQuery, name)
	}
	return &d, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidQuery, name)
	}
	return v, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
