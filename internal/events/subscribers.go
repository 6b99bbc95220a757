package events

import (
	"context"
	"fmt"

	"clinicbook/internal/domain"
	"clinicbook/internal/models"

	"github.com/rs/zerolog"
)

// SubscribeSync forwards appointment lifecycle events to the sheets sync queue.
// Created appointments are upserted as full rows, later transitions only update
// the status column.
func SubscribeSync(ctx context.Context, bus *EventBus, w domain.SyncWorker, logger *zerolog.Logger) {
	if bus == nil || w == nil {
		return
	}

	enqueue := func(taskType string) EventHandler {
		return func(ev *Event) error {
			payload, err := DecodeAppointment(ev)
			if err != nil {
				return fmt.Errorf("decode %s: %w", ev.Type, err)
			}
			appt := payload.Appointment
			if err := w.EnqueueTask(ctx, taskType, &appt); err != nil {
				if logger != nil {
					logger.Error().Err(err).
						Int64("appointment_id", payload.AppointmentID).
						Str("task", taskType).
						Msg("event bus: enqueue sync task")
				}
				return err
			}
			return nil
		}
	}

	bus.Subscribe(EventAppointmentCreated, enqueue(models.TaskUpsert))
	bus.Subscribe(EventAppointmentConfirmed, enqueue(models.TaskUpdateStatus))
	bus.Subscribe(EventAppointmentCancelled, enqueue(models.TaskUpdateStatus))
	bus.Subscribe(EventAppointmentCompleted, enqueue(models.TaskUpdateStatus))
}

// SubscribeAll registers handler for every appointment event type.
func SubscribeAll(bus *EventBus, handler EventHandler) {
	for _, t := range AppointmentEventTypes {
		bus.Subscribe(t, handler)
	}
}
