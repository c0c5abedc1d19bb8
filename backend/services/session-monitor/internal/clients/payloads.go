package clients

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"sparx/backend/services/session-monitor/internal/telemetry"
)

// FlexFloat decodes JSON numbers, numeric strings and null. Valid is false when no number was present.
type FlexFloat struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*f = FlexFloat{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			// non-numeric strings are treated as missing
			return nil
		}
		f.Value, f.Valid = v, true
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	f.Value, f.Valid = v, true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// Ptr returns nil when the value was absent.
func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// Num wraps a number as a valid FlexFloat.
func Num(v float64) FlexFloat {
	return FlexFloat{Value: v, Valid: true}
}

// TelemetryPayload is the telemetry part shared by the active and by-id session endpoints.
type TelemetryPayload struct {
	SessionID      string    `json:"sessionId"`
	Voltage        FlexFloat `json:"voltage"`
	Current        FlexFloat `json:"current"`
	Power          FlexFloat `json:"power"`
	EnergyConsumed FlexFloat `json:"energyConsumed"`
	RelayState     string    `json:"relayState,omitempty"`
	Relay          string    `json:"relay,omitempty"`
	Status         string    `json:"status"`
}

// Reading converts the payload into a telemetry reading.
func (p TelemetryPayload) Reading() telemetry.Reading {
	relay := p.RelayState
	if relay == "" {
		relay = p.Relay
	}
	return telemetry.Reading{
		SessionID: p.SessionID,
		Voltage:   p.Voltage.Ptr(),
		Current:   p.Current.Ptr(),
		Power:     p.Power.Ptr(),
		Energy:    p.EnergyConsumed.Ptr(),
		Relay:     relay,
		Status:    p.Status,
	}
}

// SessionDetail is the GET /sessions/{id} snapshot.
type SessionDetail struct {
	TelemetryPayload
	DeviceID       string     `json:"deviceId"`
	TransactionID  string     `json:"transactionId,omitempty"`
	AmountPaid     FlexFloat  `json:"amountPaid"`
	EnergySelected FlexFloat  `json:"energySelected"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	EndTrigger     string     `json:"endTrigger,omitempty"`
}

// StopSessionRequest is the POST /sessions/stop body.
type StopSessionRequest struct {
	SessionID  string    `json:"sessionId"`
	DeviceID   string    `json:"deviceId"`
	EndTime    time.Time `json:"endTime"`
	EndTrigger string    `json:"endTrigger"`
}

// Receipt is the GET /receipts/{id} body.
type Receipt struct {
	ReceiptID       string    `json:"receiptId"`
	SessionID       string    `json:"sessionId"`
	DeviceID        string    `json:"deviceId"`
	AmountPaid      FlexFloat `json:"amountPaid"`
	AmountUtilized  FlexFloat `json:"amountUtilized"`
	DiscountApplied FlexFloat `json:"discountApplied"`
	Refund          FlexFloat `json:"refund"`
	EnergyConsumed  FlexFloat `json:"energyConsumed"`
}
