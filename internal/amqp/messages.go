package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// PlanSyncMessage asks the worker to run the carryover passes of one plan.
// The worker reads everything else from the store.
type PlanSyncMessage struct {
	PlanID      string    `json:"plan_id"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewPlanSyncMessage(planID, reason string) *PlanSyncMessage {
	return &PlanSyncMessage{
		PlanID:      planID,
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
	}
}

func (m *PlanSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PlanSyncMessageFromJSON decodes a message; a message without a plan ID is rejected.
func PlanSyncMessageFromJSON(data []byte) (*PlanSyncMessage, error) {
	var msg PlanSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.PlanID == "" {
		return nil, errors.New("plan sync message without plan_id")
	}
	return &msg, nil
}
