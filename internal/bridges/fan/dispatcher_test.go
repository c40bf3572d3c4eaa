package fan

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func newTestDispatcher() (*Dispatcher, *Store, *MockMQTTClient) {
	store := NewStore(false)
	client := NewMockMQTTClient()
	return NewDispatcher(store, client, testTopics(), nil), store, client
}

func TestDispatcher_ToggleFanPower(t *testing.T) {
	d, store, client := newTestDispatcher()

	result := d.ToggleFanPower()

	if result.Power != PowerOn || result.Delivery != DeliverySent || result.Err != nil {
		t.Fatalf("ToggleFanPower() = %+v, want ON sent", result)
	}
	if store.Read().Power != PowerOn {
		t.Errorf("stored Power = %s, want ON", store.Read().Power)
	}

	pubs := client.Published()
	if len(pubs) != 1 {
		t.Fatalf("published = %d messages, want 1", len(pubs))
	}
	if pubs[0] != (mockPublish{Topic: "fan/status", Payload: "ON", QoS: 1, Retained: false}) {
		t.Errorf("published = %+v, want ON on fan/status QoS 1", pubs[0])
	}

	result = d.ToggleFanPower()
	if result.Power != PowerOff || client.Published()[1].Payload != "OFF" {
		t.Errorf("second toggle = %+v / %q, want OFF", result, client.Published()[1].Payload)
	}
}

func TestDispatcher_TogglePublishFailureKeepsState(t *testing.T) {
	d, store, client := newTestDispatcher()
	transportErr := errors.New("mqtt: client not connected")
	client.SetPublishErr(transportErr)

	result := d.ToggleFanPower()

	if result.Power != PowerOn {
		t.Errorf("Power = %s, want toggled ON", result.Power)
	}
	if result.Delivery != DeliverySendFailed {
		t.Errorf("Delivery = %s, want send_failed", result.Delivery)
	}
	if !errors.Is(result.Err, transportErr) {
		t.Errorf("Err = %v, want transport error", result.Err)
	}
	if store.Read().Power != PowerOn {
		t.Error("local state rolled back after publish failure")
	}

	stats := d.Stats()
	if stats.SendFailed != 1 || stats.LastSendFailure != transportErr.Error() {
		t.Errorf("Stats() = %+v, want one recorded send failure", stats)
	}
}

func TestDispatcher_ConcurrentTogglesParityAndOrder(t *testing.T) {
	for _, n := range []int{10, 11} {
		d, store, client := newTestDispatcher()

		var wg sync.WaitGroup
		results := make([]CommandResult, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = d.ToggleFanPower()
			}(i)
		}
		wg.Wait()

		want := PowerOff
		if n%2 == 1 {
			want = PowerOn
		}
		if got := store.Read().Power; got != want {
			t.Errorf("n=%d final Power = %s, want %s", n, got, want)
		}

		pubs := client.Published()
		if len(pubs) != n {
			t.Fatalf("n=%d published %d, want %d", n, len(pubs), n)
		}
		// Published statuses alternate, starting from ON.
		expect := PowerOn
		for i, p := range pubs {
			if p.Payload != string(expect) {
				t.Fatalf("n=%d publish %d = %s, want %s", n, i, p.Payload, expect)
			}
			expect = TogglePower(expect)
		}
		if pubs[n-1].Payload != string(want) {
			t.Errorf("n=%d last publish = %s, want final state %s", n, pubs[n-1].Payload, want)
		}

		var on int
		for _, r := range results {
			if r.Power != PowerOn && r.Power != PowerOff {
				t.Fatalf("torn result %q", r.Power)
			}
			if r.Power == PowerOn {
				on++
			}
		}
		if on != (n+1)/2 {
			t.Errorf("n=%d results with ON = %d, want %d", n, on, (n+1)/2)
		}
	}
}

func TestDispatcher_SetFanOutput(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    int
		payload string
	}{
		{name: "in range", raw: 42, want: 42, payload: "42"},
		{name: "above range", raw: json.Number("150"), want: 100, payload: "100"},
		{name: "below range", raw: json.Number("-5"), want: 0, payload: "0"},
		{name: "float integral", raw: 80.0, want: 80, payload: "80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, store, client := newTestDispatcher()

			result, err := d.SetFanOutput(tt.raw)
			if err != nil {
				t.Fatalf("SetFanOutput(%v) error = %v", tt.raw, err)
			}
			if result.Output != tt.want || result.Delivery != DeliverySent {
				t.Errorf("SetFanOutput(%v) = %+v, want %d sent", tt.raw, result, tt.want)
			}
			if got := store.Read().CommandedOutput; got != tt.want {
				t.Errorf("CommandedOutput = %d, want %d", got, tt.want)
			}
			if got := store.Read().ObservedOutput; got != 0 {
				t.Errorf("ObservedOutput = %d, want untouched 0", got)
			}

			pubs := client.Published()
			if len(pubs) != 1 || pubs[0].Topic != "fan/output" || pubs[0].Payload != tt.payload || pubs[0].QoS != 1 {
				t.Errorf("published = %+v, want %s on fan/output QoS 1", pubs, tt.payload)
			}
		})
	}
}

func TestDispatcher_SetFanOutputRejectsInvalid(t *testing.T) {
	for _, raw := range []any{nil, "x", true, 12.5} {
		d, store, client := newTestDispatcher()
		store.ApplyCommand(CommandedOutputReading(33))
		before := store.Read()

		_, err := d.SetFanOutput(raw)
		if !errors.Is(err, ErrInvalidOutput) {
			t.Errorf("SetFanOutput(%v) error = %v, want ErrInvalidOutput", raw, err)
		}
		if !sameState(store.Read(), before) {
			t.Errorf("SetFanOutput(%v) changed state", raw)
		}
		if len(client.Published()) != 0 {
			t.Errorf("SetFanOutput(%v) published a message", raw)
		}
		if d.Stats().Rejected != 1 {
			t.Errorf("Rejected = %d, want 1", d.Stats().Rejected)
		}
	}
}

func TestDispatcher_SetFanOutputPublishFailure(t *testing.T) {
	d, store, client := newTestDispatcher()
	client.SetPublishErr(errors.New("timeout"))

	result, err := d.SetFanOutput(60)
	if err != nil {
		t.Fatalf("SetFanOutput() error = %v, want nil (optimistic publish)", err)
	}
	if result.Delivery != DeliverySendFailed || result.Output != 60 {
		t.Errorf("result = %+v, want 60 send_failed", result)
	}
	if store.Read().CommandedOutput != 60 {
		t.Error("commanded output rolled back after publish failure")
	}
}

func TestQuery_Snapshot(t *testing.T) {
	store := NewStore(false)
	q := NewQuery(store)

	store.ApplyTelemetry(TemperatureReading(25))
	if got := q.Snapshot().Temperature; got != 25 {
		t.Errorf("Snapshot().Temperature = %v, want 25", got)
	}
}
