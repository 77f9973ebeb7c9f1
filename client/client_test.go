package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/transport"
)

// setup a helper function to create a client with a mock transport layer for each test.
func setup(t *testing.T) (*gomock.Controller, *transport.MockCommandSender, *Client) {
	ctrl := gomock.NewController(t)
	mockSender := transport.NewMockCommandSender(ctrl)

	servers := map[string]string{
		"n1": "localhost:8001",
		"n2": "localhost:8002",
		"n3": "localhost:8003",
	}

	client := NewClient(servers, mockSender)
	// For predictability in tests, let's set a fixed client ID.
	client.clientID = 12345
	client.retry = time.Millisecond
	return ctrl, mockSender, client
}

func TestNewClient(t *testing.T) {
	ctrl, _, client := setup(t)
	defer ctrl.Finish()

	assert.NotNil(t, client)
	assert.Equal(t, int64(0), client.sequenceNum)
	assert.Empty(t, client.leaderHint)
	assert.Equal(t, []string{"n1", "n2", "n3"}, client.order)
	assert.NotNil(t, client.sender)
}

func TestSelectTargetNode(t *testing.T) {
	_, _, client := setup(t)

	// Case 1: No leader hint, servers are tried in turn
	assert.Equal(t, "n1", client.selectTargetNode())
	assert.Equal(t, "n2", client.selectTargetNode())
	assert.Equal(t, "n3", client.selectTargetNode())
	assert.Equal(t, "n1", client.selectTargetNode())

	// Case 2: With a leader hint, should return the leader hint
	client.leaderHint = "n2"
	assert.Equal(t, "n2", client.selectTargetNode())
}

func TestDecideNextAction(t *testing.T) {
	_, _, client := setup(t)

	testCases := []struct {
		name               string
		reply              *param.SubmitReply
		err                error
		expectedAction     clientAction
		expectedLeaderHint string
	}{
		{
			name:               "Network Error",
			err:                errors.New("connection refused"),
			expectedAction:     actionRetry,
			expectedLeaderHint: "", // Should reset leader hint on network error
		},
		{
			name:               "Not Leader Reply",
			reply:              &param.SubmitReply{Leader: "n3"},
			expectedAction:     actionRetry,
			expectedLeaderHint: "n3", // Should update leader hint
		},
		{
			name:               "Unknown Leader Hint",
			reply:              &param.SubmitReply{Leader: "n9"},
			expectedAction:     actionRetry,
			expectedLeaderHint: "",
		},
		{
			name:               "Stale Hint Pointing At Target",
			reply:              &param.SubmitReply{Leader: "n1"},
			expectedAction:     actionRetry,
			expectedLeaderHint: "",
		},
		{
			name:               "Accepted Reply",
			reply:              &param.SubmitReply{Accepted: true, Leader: "n1", Index: 4, Term: 2},
			expectedAction:     actionSuccess,
			expectedLeaderHint: "n1",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Reset leader hint before each test case
			client.leaderHint = "n1"
			action := client.decideNextAction("n1", tc.reply, tc.err)

			assert.Equal(t, tc.expectedAction, action)
			assert.Equal(t, tc.expectedLeaderHint, client.leaderHint)
		})
	}
}

func TestSendCommand(t *testing.T) {
	t.Run("Success on first try", func(t *testing.T) {
		ctrl, mockSender, client := setup(t)
		defer ctrl.Finish()

		body := []byte(`{"op":"set","key":"k","value":"v"}`)
		mockSender.EXPECT().
			SubmitCommand(gomock.Any(), "localhost:8001", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, cmd *param.Command) (*param.SubmitReply, error) {
				assert.Equal(t, body, cmd.Body)
				assert.Equal(t, "12345-1", cmd.UID)
				return &param.SubmitReply{Accepted: true, Leader: "n1", Index: 0, Term: 1}, nil
			})

		reply, err := client.SendCommand(context.Background(), body)
		require.NoError(t, err)
		assert.True(t, reply.Accepted)
		assert.Equal(t, int64(1), client.sequenceNum)
		assert.Equal(t, "n1", client.leaderHint)
	})

	t.Run("Success after not-leader reply", func(t *testing.T) {
		ctrl, mockSender, client := setup(t)
		defer ctrl.Finish()

		// Use gomock.InOrder to ensure the calls happen in sequence
		gomock.InOrder(
			mockSender.EXPECT().
				SubmitCommand(gomock.Any(), "localhost:8001", gomock.Any()).
				Return(&param.SubmitReply{Leader: "n2"}, nil),

			// Second call should go to the hinted leader
			mockSender.EXPECT().
				SubmitCommand(gomock.Any(), "localhost:8002", gomock.Any()).
				Return(&param.SubmitReply{Accepted: true, Leader: "n2", Index: 3, Term: 2}, nil),
		)

		reply, err := client.SendCommand(context.Background(), []byte("x"))
		require.NoError(t, err)
		assert.Equal(t, int64(3), reply.Index)
		assert.Equal(t, "n2", client.leaderHint, "Leader hint should be updated to the correct leader")
	})

	t.Run("Rotates past unreachable nodes", func(t *testing.T) {
		ctrl, mockSender, client := setup(t)
		defer ctrl.Finish()

		gomock.InOrder(
			mockSender.EXPECT().
				SubmitCommand(gomock.Any(), "localhost:8001", gomock.Any()).
				Return(nil, errors.New("connection refused")),
			mockSender.EXPECT().
				SubmitCommand(gomock.Any(), "localhost:8002", gomock.Any()).
				Return(&param.SubmitReply{}, nil),
			mockSender.EXPECT().
				SubmitCommand(gomock.Any(), "localhost:8003", gomock.Any()).
				Return(&param.SubmitReply{Accepted: true, Leader: "n3"}, nil),
		)

		_, err := client.SendCommand(context.Background(), []byte("x"))
		require.NoError(t, err)
		assert.Equal(t, "n3", client.leaderHint)
	})

	t.Run("Command times out", func(t *testing.T) {
		ctrl, mockSender, client := setup(t)
		defer ctrl.Finish()

		mockSender.EXPECT().
			SubmitCommand(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("no route")).
			AnyTimes()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		reply, err := client.SendCommand(ctx, []byte("x"))

		assert.ErrorIs(t, err, ErrGiveUp)
		assert.Nil(t, reply)
	})
}
