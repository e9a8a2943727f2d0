/*
events.go - Domain events

PURPOSE:
  One Event is appended to the EventLog per successful mutation, after the
  Store has committed it. External subscribers (notification, search
  indexing) tail the log by sequence number.

ORDERING:
  Events for one entity appear in the same order as that entity's commits.
  Interleaving across entities is unspecified.

SEE ALSO:
  - engine.go: emits events
  - notify/dispatcher.go: delivers them
*/
package provenance

import (
	"time"
)

type EventType string

const (
	EventBatchCreated              EventType = "BatchCreated"
	EventProductAdded              EventType = "ProductAdded"
	EventProductAssignedToCourier  EventType = "ProductAssignedToCourier"
	EventProductAssignedToCustomer EventType = "ProductAssignedToCustomer"
	EventCheckpointAdded           EventType = "CheckpointAdded"
	EventProductDelivered          EventType = "ProductDelivered"
	EventBatchCertified            EventType = "BatchCertified"
)

type Event struct {
	// Seq is assigned by the EventLog.
	Seq uint64
	// ID is a random UUID, stable across replays of the log.
	ID        string
	Type      EventType
	Actor     ActorID
	BatchID   BatchID
	ProductID ProductID
	Payload   map[string]string
	At        time.Time
}
