package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/paddledesk/internal/model"
)

func TestUrgency(t *testing.T) {
	assert.Equal(t, byte(2), urgency(model.PriorityUrgent))
	assert.Equal(t, byte(1), urgency(model.PriorityHigh))
	assert.Equal(t, byte(1), urgency(model.PriorityMedium))
	assert.Equal(t, byte(0), urgency(model.PriorityLow))
}

func TestActionList(t *testing.T) {
	got := actionList(model.DefaultActions(model.TypePendingConfirmation))
	assert.Equal(t, []string{"confirm", "Confirm", "call", "Call client"}, got)
	assert.Empty(t, actionList(nil))
}
