package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/fanbridge/internal/bridges/fan"
)

// Request field names accepted by POST /set_fan_output. Both carry a duty
// percentage; "rpm" is the dashboard's legacy name for the same value.
const (
	fieldDutyCycle = "duty_c"
	fieldRPM       = "rpm"
)

// msgInvalidInput is returned for any rejected control request.
const msgInvalidInput = "Invalid input"

// statePayload renders a snapshot in the /data shape. Readings that have
// not arrived yet are null; current_humidity is present only when humidity
// is tracked.
func statePayload(st fan.DeviceState) map[string]any {
	payload := map[string]any{
		"fan_status":         st.Power,
		"current_fan_output": st.ObservedOutput,
		"set_fan_output":     st.CommandedOutput,
		"current_temp":       nil,
	}
	if st.HasTemperature() {
		payload["current_temp"] = st.Temperature
	}
	if st.HumidityEnabled {
		payload["current_humidity"] = nil
		if st.HasHumidity() {
			payload["current_humidity"] = st.Humidity
		}
	}
	return payload
}

// handleData returns the current fan and sensor state.
func (s *Server) handleData(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statePayload(s.state.Snapshot()))
}

// handleFanToggle flips the fan power. A failed bus publish is reported in
// "delivery" but the request still succeeds.
func (s *Server) handleFanToggle(w http.ResponseWriter, r *http.Request) {
	result := s.dispatcher.ToggleFanPower()

	s.logger.Info("fan toggled",
		"fan_status", result.Power,
		"delivery", result.Delivery,
		"request_id", requestIDFrom(r.Context()),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Fan status updated!",
		"fan_status": result.Power,
		"delivery":   result.Delivery,
	})
}

// handleSetFanOutput sets the commanded fan duty from {"duty_c": n} or
// {"rpm": n}. The response echoes the clamped value under the key the
// dashboard expects for the field it sent.
func (s *Server) handleSetFanOutput(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeBadRequest(w, msgInvalidInput)
		return
	}

	raw, ok := body[fieldDutyCycle]
	responseKey := "current_fan_output"
	if !ok {
		raw, ok = body[fieldRPM]
		responseKey = "set_fan_output"
	}
	if !ok {
		writeBadRequest(w, msgInvalidInput)
		return
	}

	result, err := s.dispatcher.SetFanOutput(raw)
	if err != nil {
		if errors.Is(err, fan.ErrInvalidOutput) {
			writeBadRequest(w, msgInvalidInput)
			return
		}
		s.logger.Error("set fan output failed", "error", err)
		writeInternalError(w, "Error updating fan output")
		return
	}

	s.logger.Info("fan output set",
		"output", result.Output,
		"delivery", result.Delivery,
		"request_id", requestIDFrom(r.Context()),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Fan output updated!",
		responseKey: result.Output,
		"delivery":  result.Delivery,
	})
}
