package fan

import (
	"strconv"
	"sync"

	"github.com/nerrad567/fanbridge/internal/infrastructure/config"
)

// commandQoS is used for every outbound command.
const commandQoS = 1

// Publisher sends outbound messages. Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Dispatcher turns control requests into local state changes and
// outbound bus commands.
//
// Publishing is optimistic: the local change is kept when the publish
// fails, the failure is recorded, and the result carries
// DeliverySendFailed.
//
// Thread Safety: All methods are safe for concurrent use. Commands are
// serialised so bus order matches state order.
type Dispatcher struct {
	store     *Store
	publisher Publisher
	topics    config.TopicsConfig
	logger    Logger

	// mu serialises commands; readers and telemetry never take it.
	mu sync.Mutex

	statsMu sync.Mutex
	stats   DispatcherStats
}

// DispatcherStats counts outbound command outcomes.
type DispatcherStats struct {
	Toggles         int64  `json:"toggles"`
	OutputCommands  int64  `json:"output_commands"`
	Rejected        int64  `json:"rejected"`
	Sent            int64  `json:"sent"`
	SendFailed      int64  `json:"send_failed"`
	LastSendFailure string `json:"last_send_failure,omitempty"`
}

// NewDispatcher creates a Dispatcher publishing on topics.StatusCommand
// and topics.OutputCommand.
func NewDispatcher(store *Store, publisher Publisher, topics config.TopicsConfig, logger Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		topics:    topics,
		logger:    orNop(logger),
	}
}

// ToggleFanPower flips the power status and publishes the new status
// ("ON" or "OFF") on the status command topic.
//
// Returns:
//   - CommandResult: the new status and delivery outcome
func (d *Dispatcher) ToggleFanPower() CommandResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.store.UpdatePower(TogglePower)
	err := d.publisher.Publish(d.topics.StatusCommand, []byte(next), commandQoS, false)

	d.statsMu.Lock()
	d.stats.Toggles++
	d.statsMu.Unlock()

	result := CommandResult{
		Power:  next,
		Output: d.store.Read().CommandedOutput,
	}
	d.finish(&result, d.topics.StatusCommand, err)
	return result
}

// SetFanOutput validates raw, stores the clamped level as the commanded
// output and publishes it as a decimal integer on the output command topic.
//
// Returns:
//   - CommandResult: the stored level and delivery outcome
//   - error: ErrInvalidOutput if raw is missing or not an integer; state
//     and bus are untouched in that case
func (d *Dispatcher) SetFanOutput(raw any) (CommandResult, error) {
	level, err := ValidateOutputLevel(raw)
	if err != nil {
		d.statsMu.Lock()
		d.stats.Rejected++
		d.statsMu.Unlock()
		return CommandResult{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.store.ApplyCommand(CommandedOutputReading(level))
	pubErr := d.publisher.Publish(d.topics.OutputCommand, []byte(strconv.Itoa(level)), commandQoS, false)

	d.statsMu.Lock()
	d.stats.OutputCommands++
	d.statsMu.Unlock()

	result := CommandResult{
		Power:  d.store.Read().Power,
		Output: level,
	}
	d.finish(&result, d.topics.OutputCommand, pubErr)
	return result, nil
}

// finish records the publish outcome on result and in the stats.
func (d *Dispatcher) finish(result *CommandResult, topic string, err error) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	if err != nil {
		result.Delivery = DeliverySendFailed
		result.Err = err
		d.stats.SendFailed++
		d.stats.LastSendFailure = err.Error()
		d.logger.Warn("command publish failed; local state kept",
			"topic", topic,
			"power", string(result.Power),
			"output", result.Output,
			"error", err,
		)
		return
	}

	result.Delivery = DeliverySent
	d.stats.Sent++
	d.logger.Debug("command published", "topic", topic)
}

// Stats returns outbound command counters.
func (d *Dispatcher) Stats() DispatcherStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}
