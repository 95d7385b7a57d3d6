package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"token-analyzer/internal/worker/apperr"
	"token-analyzer/pkg/utils"
)

type fakeStarter struct {
	started []string
}

func (f *fakeStarter) StartOrAttach(tokenID string) (RunSnapshot, error) {
	if !utils.IsValidEntityID(tokenID) {
		return RunSnapshot{}, apperr.InvalidTokenID(tokenID)
	}
	f.started = append(f.started, tokenID)
	return RunSnapshot{TokenID: tokenID, Status: StatusStarted}, nil
}

func TestRefresh_StartsEveryToken(t *testing.T) {
	starter := &fakeStarter{}
	err := NewRefresh(starter, []string{"0.0.1", "bad", "0.0.2"}, zap.NewNop()).Run(context.Background())

	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, []string{"0.0.1", "0.0.2"}, starter.started)
}

func TestRefresh_StopsOnCancelledContext(t *testing.T) {
	starter := &fakeStarter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewRefresh(starter, []string{"0.0.1"}, zap.NewNop()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, starter.started)
}
