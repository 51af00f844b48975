package handler

import (
	"time"

	"github.com/iliyamo/homestay-reservation/internal/model"
)

type customerView struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type lineView struct {
	Position   int    `json:"position"`
	RoomID     string `json:"room_id"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	Nights     int    `json:"nights"`
	Adults     int    `json:"adults"`
	Children   int    `json:"children"`
	PriceCents int64  `json:"price_cents"`
}

type reservationView struct {
	ID               string       `json:"id"`
	BranchID         string       `json:"branch_id"`
	Customer         customerView `json:"customer"`
	Status           string       `json:"status"`
	PaymentMethod    string       `json:"payment_method"`
	PaymentTimeoutAt *time.Time   `json:"payment_timeout_at,omitempty"`
	TotalAmountCents int64        `json:"total_amount_cents"`
	IsDeleted        bool         `json:"is_deleted"`
	DeletedAt        *time.Time   `json:"deleted_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	Lines            []lineView   `json:"lines"`
}

func newReservationView(r *model.Reservation) reservationView {
	v := reservationView{
		ID:               r.ID,
		BranchID:         r.BranchID,
		Customer:         customerView{Name: r.Customer.Name, Email: r.Customer.Email, Phone: r.Customer.Phone},
		Status:           string(r.Status),
		PaymentMethod:    string(r.PaymentMethod),
		PaymentTimeoutAt: r.PaymentTimeoutAt,
		TotalAmountCents: r.TotalAmountCents,
		IsDeleted:        r.IsDeleted,
		DeletedAt:        r.DeletedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		Lines:            make([]lineView, 0, len(r.Lines)),
	}
	for _, l := range r.Lines {
		v.Lines = append(v.Lines, lineView{
			Position:   l.Position,
			RoomID:     l.RoomID,
			CheckIn:    l.Stay.CheckIn.Format(model.DateLayout),
			CheckOut:   l.Stay.CheckOut.Format(model.DateLayout),
			Nights:     l.Stay.Nights(),
			Adults:     l.Adults,
			Children:   l.Children,
			PriceCents: l.PriceCents,
		})
	}
	return v
}

type roomView struct {
	ID               string `json:"id"`
	BranchID         string `json:"branch_id"`
	Name             string `json:"name"`
	Capacity         int    `json:"capacity"`
	NightlyRateCents int64  `json:"nightly_rate_cents"`
	TotalCents       int64  `json:"total_cents"`
}

func newRoomView(r model.Room, stay model.Interval) roomView {
	return roomView{
		ID:               r.ID,
		BranchID:         r.BranchID,
		Name:             r.Name,
		Capacity:         r.Capacity,
		NightlyRateCents: r.NightlyRateCents,
		TotalCents:       r.NightlyRateCents * int64(stay.Nights()),
	}
}
