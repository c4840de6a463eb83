package service

import (
	"context"
	"encoding/json"
	"testing"

	"leadrelay/internal/constants"
	"leadrelay/internal/database"
	"leadrelay/internal/models"
	relaytypes "leadrelay/pkg/relayapi/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSelfTestFields(t *testing.T) {
	fields := SelfTestFields().Fields()

	require.Len(t, fields, 4)
	assert.Equal(t, models.Field{Name: "name", Value: constants.SelfTestName}, fields[0])
	assert.Equal(t, models.Field{Name: "phone", Value: constants.SelfTestPhone}, fields[1])
	assert.Equal(t, models.Field{Name: "email", Value: constants.SelfTestEmail}, fields[2])
	assert.Equal(t, models.Field{Name: "message", Value: constants.SelfTestMessage}, fields[3])
}

func TestSelfTest_Live(t *testing.T) {
	f := newDispatcherFixture(t)
	f.primary.On("Send", mock.Anything, mock.Anything, constants.SelfTestFormType).
		Return(&relaytypes.SendResponse{Success: true, MessageID: json.RawMessage("314")}, nil).Once()

	report, err := f.d.SelfTest(context.Background())

	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, constants.ChannelPrimary, report.Via)
	assert.Equal(t, int64(314), report.MessageID)
	assert.Empty(t, report.Error)
}

func TestSelfTest_FailureIsReported(t *testing.T) {
	primary := &mockPrimaryClient{}
	primary.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil, primaryFailure("HTTP 500"))
	d := NewLiveDispatcher(DispatcherConfig{ChannelOrder: []string{constants.ChannelPrimary}}, LiveDeps{
		Primary: primary,
		Store:   database.NewMemoryStore(),
		Logger:  quietLogger(),
	})

	report, err := d.SelfTest(context.Background())

	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.Contains(t, report.Error, "HTTP 500")
}

func TestSelfTest_Stub(t *testing.T) {
	report, err := NewStubDispatcher(0, nil, quietLogger()).SelfTest(context.Background())

	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, constants.ChannelStub, report.Via)
}
