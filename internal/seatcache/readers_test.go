package seatcache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
)

func pos(r, c int) model.SeatPosition { return model.SeatPosition{Row: r, Column: c} }

func TestDecodeSeatBlob(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want model.SeatStatusView
	}{
		{"empty", "", model.SeatStatusView{}},
		{"malformed", `{"asientos":[`, model.SeatStatusView{}},
		{"no array", `{"asientos":{"fila":1}}`, model.SeatStatusView{}},
		{
			name: "skips invalid entries",
			raw: `{"eventoId":1,"asientos":[
				{"fila":1,"columna":1,"estado":"Libre"},
				{"fila":0,"columna":2,"estado":"Libre"},
				{"fila":1,"columna":3,"estado":"  "},
				{"columna":4,"estado":"Vendido"},
				{"fila":2,"columna":2,"estado":"Vendido"}]}`,
			want: model.SeatStatusView{pos(1, 1): "Libre", pos(2, 2): "Vendido"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeSeatBlob(tt.raw))
		})
	}
}

func TestDecodeSeatHash(t *testing.T) {
	got := decodeSeatHash(map[string]string{
		"fila:1:columna:2": "Ocupado",
		"fila:x:columna:2": "Libre",
		"row:1:col:1":      "Libre",
		"fila:3:columna:3": "",
	})
	assert.Equal(t, model.SeatStatusView{pos(1, 2): "Ocupado"}, got)
}

func TestDecodeSeatKeys(t *testing.T) {
	got := decodeSeatKeys(5, []string{
		"evento:5:asiento:2-3",
		"evento:5:asiento:4-1",
		"evento:50:asiento:1-1",
		"evento:5:asiento:bad",
		"evento:5:asientos",
	})
	assert.Equal(t, model.SeatStatusView{pos(2, 3): model.SeatLocked, pos(4, 1): model.SeatLocked}, got)
}
